package workerproto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ReadyToken is printed once by the worker after it finished loading.
	ReadyToken = "READY"
	// ExitToken asks the worker to exit on its own.
	ExitToken = "exit"
)

// Request asks the worker to classify one file.
type Request struct {
	ID        string  `json:"id,omitempty"`
	File      string  `json:"file"`
	Threshold float64 `json:"threshold"`
}

// Response is the worker verdict for one request.
type Response struct {
	ID     string `json:"id,omitempty"`
	Keep   bool   `json:"keep"`
	Reason string `json:"reason,omitempty"`
}

// MalformedError reports a response line that does not have the expected shape.
type MalformedError struct {
	Line string
	Err  error
}

// Error formats the offending line in a bounded form.
func (e *MalformedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("malformed worker response %q: %v", truncate(e.Line, 120), e.Err)
}

// Unwrap exposes the parse error.
func (e *MalformedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsReady reports whether line is the readiness token.
func IsReady(line string) bool {
	return strings.TrimSpace(line) == ReadyToken
}

// ParseResponse decodes one response line. Only a JSON object is accepted; keep
// counts as true only when it is the JSON literal true, and a non-string reason
// is dropped.
func ParseResponse(line string) (Response, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Response{}, &MalformedError{Line: line, Err: fmt.Errorf("not a JSON object")}
	}

	var raw struct {
		ID     json.RawMessage `json:"id"`
		Keep   json.RawMessage `json:"keep"`
		Reason json.RawMessage `json:"reason"`
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Response{}, &MalformedError{Line: line, Err: err}
	}

	resp := Response{
		Keep: bytes.Equal(bytes.TrimSpace(raw.Keep), []byte("true")),
	}
	if len(raw.Reason) > 0 {
		var reason string
		if err := json.Unmarshal(raw.Reason, &reason); err == nil {
			resp.Reason = reason
		}
	}
	if len(raw.ID) > 0 {
		var id string
		if err := json.Unmarshal(raw.ID, &id); err == nil {
			resp.ID = id
		}
	}
	return resp, nil
}

// LastLine returns the last non-blank line of a captured output, used when a
// one-shot analyzer prints diagnostics before its verdict.
func LastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
