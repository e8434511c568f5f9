package triage

import (
	"log/slog"

	"photo-triage/internal/domain"
)

// progressChannel forwards events to a single observer in emission order and
// closes itself after the first terminal event.
type progressChannel struct {
	observer func(domain.ProgressEvent)
	logger   *slog.Logger
	closed   bool
	last     int
}

func newProgressChannel(observer func(domain.ProgressEvent), logger *slog.Logger) *progressChannel {
	return &progressChannel{observer: observer, logger: logger}
}

// emit delivers ev synchronously. Events after a terminal event are dropped.
func (c *progressChannel) emit(ev domain.ProgressEvent) {
	if c.closed {
		c.logger.Debug("dropping event after terminal event", "type", ev.Type)
		return
	}
	if ev.Type == domain.EventProgress {
		if ev.Current != c.last+1 {
			c.logger.Warn("progress event out of sequence", "current", ev.Current, "previous", c.last)
		}
		c.last = ev.Current
	}
	if ev.Terminal() {
		c.closed = true
	}
	if c.observer != nil {
		c.observer(ev)
	}
}
