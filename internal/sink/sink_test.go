package sink

import (
	"context"
	"testing"
)

func TestSlogSinkNotifyNeverErrors(t *testing.T) {
	s := NewSlogSink(nil)
	if err := s.Notify(context.Background(), "cron", "hello world"); err != nil {
		t.Errorf("Notify() returned an error: %s", err)
	}
}

func TestNewSlogSinkDefaultsLoggerWhenNil(t *testing.T) {
	s := NewSlogSink(nil)
	if s.logger == nil {
		t.Error("expected NewSlogSink(nil) to default to slog.Default()")
	}
}
