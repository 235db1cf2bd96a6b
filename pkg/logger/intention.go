package logger

// Intention represents the semantic intent of a log line, orthogonal to
// level. It keeps emojis out of call sites while still emitting meaningful
// icons at the console and structured attributes in file logs.
type Intention string

const (
	IntentionStatus  Intention = "status"
	IntentionSend    Intention = "send"
	IntentionRetry   Intention = "retry"
	IntentionOffline Intention = "offline"
	IntentionSuccess Intention = "success"
	IntentionConfig  Intention = "config"
	IntentionCancel  Intention = "cancel"
)

// iconFor returns a short emoji string for console output for the intention.
func iconFor(i Intention) string {
	switch i {
	case IntentionStatus:
		return "ℹ️"
	case IntentionSend:
		return "📤"
	case IntentionRetry:
		return "🔁"
	case IntentionOffline:
		return "📡"
	case IntentionSuccess:
		return "✅"
	case IntentionConfig:
		return "⚙️"
	case IntentionCancel:
		return "🛑"
	default:
		return "➤"
	}
}
