package ports

import (
	"context"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// AuthEventRecorder accepts audit events without blocking the caller.
type AuthEventRecorder interface {
	Record(event domain.AuthEvent)
}

// AuthEventSink persists audit events.
type AuthEventSink interface {
	Write(ctx context.Context, event domain.AuthEvent) error
}
