package workerproto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LineBuffer splits an append-only byte stream into newline-terminated lines.
// A trailing fragment without a terminator is retained until a later Feed completes it.
type LineBuffer struct {
	pending []byte
}

// Feed appends chunk and returns every complete, non-blank line now available.
// Lines are returned without the terminator; a trailing carriage return is trimmed.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(b.pending[:idx], "\r")
		b.pending = b.pending[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}

	if len(b.pending) == 0 {
		b.pending = nil
	}
	return lines
}

// Pending returns the buffered fragment that has no terminator yet.
func (b *LineBuffer) Pending() string {
	return string(b.pending)
}

// Flush returns the buffered fragment as a final line, if it is not blank, and
// resets the buffer. Used once the stream has ended.
func (b *LineBuffer) Flush() (string, bool) {
	rest := bytes.TrimRight(b.pending, "\r")
	b.pending = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return "", false
	}
	return string(rest), true
}

// Encode serializes value as JSON followed by a single newline.
func Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(data, '\n'), nil
}
