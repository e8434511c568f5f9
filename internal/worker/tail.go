package worker

import (
	"log/slog"
	"sync"

	"photo-triage/internal/workerproto"
)

const stderrTailBytes = 8 << 10

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

// Write implements io.Writer and never fails.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = append(t.data, p...)
	if over := len(t.data) - t.max; over > 0 {
		t.data = append([]byte(nil), t.data[over:]...)
	}
	return len(p), nil
}

// String returns the retained tail.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}

// stderrSink captures worker diagnostics: a bounded tail for crash reports and
// one debug log record per line.
type stderrSink struct {
	tail   *tailBuffer
	lines  workerproto.LineBuffer
	logger *slog.Logger
	mu     sync.Mutex
}

func newStderrSink(logger *slog.Logger) *stderrSink {
	return &stderrSink{tail: newTailBuffer(stderrTailBytes), logger: logger}
}

// Write implements io.Writer and never fails.
func (s *stderrSink) Write(p []byte) (int, error) {
	_, _ = s.tail.Write(p)

	s.mu.Lock()
	lines := s.lines.Feed(p)
	s.mu.Unlock()
	for _, line := range lines {
		s.logger.Debug("worker stderr", "line", line)
	}
	return len(p), nil
}
