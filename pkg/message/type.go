package message

// Sender identifies which side of the conversation authored a message.
type Sender int

const (
	SenderUser Sender = iota
	SenderAgent
)

// String returns the string representation of Sender
func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseSender converts a persisted sender string back to a Sender.
// Unknown values default to SenderUser so restored timelines stay renderable.
func ParseSender(s string) Sender {
	if s == "agent" {
		return SenderAgent
	}
	return SenderUser
}

// DeliveryState tracks the outbound delivery lifecycle of a user message.
// Agent messages are always terminal and carry DeliveryNone.
type DeliveryState int

const (
	DeliveryNone DeliveryState = iota
	DeliverySending
	DeliverySent
	DeliveryFailed
)

// String returns the string representation of DeliveryState
func (d DeliveryState) String() string {
	switch d {
	case DeliverySending:
		return "sending"
	case DeliverySent:
		return "sent"
	case DeliveryFailed:
		return "failed"
	default:
		return ""
	}
}

// ParseDeliveryState converts a persisted delivery state string back to a
// DeliveryState. Empty or unknown values map to DeliveryNone.
func ParseDeliveryState(s string) DeliveryState {
	switch s {
	case "sending":
		return DeliverySending
	case "sent":
		return DeliverySent
	case "failed":
		return DeliveryFailed
	default:
		return DeliveryNone
	}
}

// Terminal reports whether no further automatic transition can occur.
func (d DeliveryState) Terminal() bool {
	return d == DeliverySent || d == DeliveryFailed
}
