// Package sink implements the fire-and-forget notification hook invoked
// after every run's final output, independent of reply_fn delivery. It
// ships an interface plus one trivial slog-backed implementation, not a
// formatting engine.
package sink

import (
	"context"
	"log/slog"
)

// Sink receives the final text of a run, independent of whether it was
// also delivered via reply_fn. Implementations must not block the caller
// for long; a slow sink should hand off internally.
type Sink interface {
	Notify(ctx context.Context, triggerType, text string) error
}

// SlogSink logs every dispatch at info level. This is the trivial default
// implementation; a real deployment would swap in a webhook/queue sink
// behind the same interface.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink constructs a SlogSink, defaulting to slog.Default() when
// logger is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Notify(_ context.Context, triggerType, text string) error {
	s.logger.Info("sink dispatch", slog.String("trigger", triggerType), slog.Int("output_len", len(text)))
	return nil
}
