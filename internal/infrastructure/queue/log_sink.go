package queue

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// LogSink writes auth events as structured log lines. It is used when no
// document store is configured for the audit trail.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Write(_ context.Context, event domain.AuthEvent) error {
	s.log.Info().
		Str("event_type", string(event.Type)).
		Str("identity_id", event.IdentityID).
		Time("occurred_at", event.OccurredAt).
		Msg("auth event")
	return nil
}
