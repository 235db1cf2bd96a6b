package agent

// StandardShape is the default wire payload understood by the general
// concierge workflow.
func StandardShape(text, sessionID string) any {
	return map[string]any{
		"sessionId": sessionID,
		"text":      text,
	}
}

// PromptShape is used by the rate agent, which runs a prompt-driven workflow
// and expects the message under "prompt".
func PromptShape(text, sessionID string) any {
	return map[string]any{
		"sessionId": sessionID,
		"prompt":    text,
		"source":    "chat",
	}
}

// EnvelopeShape is used by the forecast agent, which takes a nested session
// envelope.
func EnvelopeShape(text, sessionID string) any {
	return map[string]any{
		"session": map[string]any{"id": sessionID},
		"input":   text,
	}
}

// ShapeByName maps an agents.yaml shape name to its payload function.
// Unknown names fall back to the standard shape.
func ShapeByName(name string) PayloadFunc {
	switch name {
	case "prompt":
		return PromptShape
	case "envelope":
		return EnvelopeShape
	default:
		return StandardShape
	}
}

// DefaultConfigs returns the built-in agent set used when no agents.yaml is
// provided. Endpoints are webhook paths under the workflow base URL.
func DefaultConfigs(baseURL string) []Config {
	return []Config{
		{
			ID:       "general",
			Name:     "Concierge",
			Endpoint: baseURL + "/webhook/concierge",
			Shape:    StandardShape,
		},
		{
			ID:       "rate",
			Name:     "Rate Desk",
			Endpoint: baseURL + "/webhook/rate-desk",
			Shape:    PromptShape,
		},
		{
			ID:       "forecast",
			Name:     "Availability Forecast",
			Endpoint: baseURL + "/webhook/forecast",
			Disabled: true, // not yet rolled out on the workflow side
			Shape:    EnvelopeShape,
		},
	}
}
