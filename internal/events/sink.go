// Package events defines the analytics event sink shared by components.
package events

import "log/slog"

// Sink records analytics events. Implementations must never fail the
// caller; recording is best-effort.
type Sink interface {
	Record(event string, fields ...any)
}

// SlogSink writes events to the default structured logger.
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Record(event string, fields ...any) {
	s.log.Info("event", append([]any{"name", event}, fields...)...)
}

// Noop discards all events (used in tests).
type Noop struct{}

func (Noop) Record(event string, fields ...any) {}
