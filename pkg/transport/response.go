package transport

import (
	"encoding/json"
	"strings"
)

// Reply is the parsed remote response. Message is empty when no reply text
// could be extracted; delivery still counts as successful in that case.
type Reply struct {
	Message string
}

// replyEnvelope covers the reply shapes the workflow backends produce.
// encoding/json matches field names case-insensitively, so "Message" and
// "message" both land in the same field.
type replyEnvelope struct {
	Message string          `json:"message"`
	Output  json.RawMessage `json:"output"`
}

// ParseReply extracts the agent reply text from a response body. Three
// shapes are tolerated: a top-level message field, a message nested under an
// output object, and an output string holding a JSON-encoded document whose
// message field is extracted. Anything else yields an empty reply, never an
// error.
func ParseReply(body []byte) *Reply {
	var env replyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &Reply{}
	}

	if env.Message != "" {
		return &Reply{Message: env.Message}
	}

	if len(env.Output) == 0 {
		return &Reply{}
	}

	// output as an object with a message field
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Output, &nested); err == nil && nested.Message != "" {
		return &Reply{Message: nested.Message}
	}

	// output as a string holding a serialized document
	var doc string
	if err := json.Unmarshal(env.Output, &doc); err == nil && strings.TrimSpace(doc) != "" {
		if err := json.Unmarshal([]byte(doc), &nested); err == nil && nested.Message != "" {
			return &Reply{Message: nested.Message}
		}
	}

	return &Reply{}
}
