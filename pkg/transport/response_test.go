package transport

import (
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "top-level message",
			body: `{"message": "Thanks!"}`,
			want: "Thanks!",
		},
		{
			name: "top-level Message capitalized",
			body: `{"Message": "Thanks!"}`,
			want: "Thanks!",
		},
		{
			name: "message nested under output",
			body: `{"output": {"message": "Hi there"}}`,
			want: "Hi there",
		},
		{
			name: "output is a serialized document",
			body: `{"output": "{\"Message\":\"Hi\"}"}`,
			want: "Hi",
		},
		{
			name: "output serialized document lowercase key",
			body: `{"output": "{\"message\":\"Hello\"}"}`,
			want: "Hello",
		},
		{
			name: "no extractable reply",
			body: `{"status": "ok"}`,
			want: "",
		},
		{
			name: "output without message field",
			body: `{"output": {"code": 3}}`,
			want: "",
		},
		{
			name: "output string that is not JSON",
			body: `{"output": "plain text"}`,
			want: "",
		},
		{
			name: "not JSON at all",
			body: `<html>oops</html>`,
			want: "",
		},
		{
			name: "empty body",
			body: ``,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := ParseReply([]byte(tt.body))
			if reply == nil {
				t.Fatal("ParseReply() must never return nil")
			}
			if reply.Message != tt.want {
				t.Fatalf("ParseReply(%s) = %q, want %q", tt.body, reply.Message, tt.want)
			}
		})
	}
}
