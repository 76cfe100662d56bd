package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the structured log. Alerts are logged at error level.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher backed by logger.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, e Envelope) {
	ev := p.logger.Info()
	if e.IsAlert() {
		ev = p.logger.Error()
	}
	ev.Str("event_id", e.EventID).
		Str("event_type", e.EventType).
		Str("key", e.Key).
		RawJSON("payload", e.Payload).
		Msg("event")
}
