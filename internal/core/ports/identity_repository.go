package ports

import (
	"context"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// IdentityRepository defines persistence for registered identities.
// Implementations enforce email uniqueness at the storage layer so that
// Create is a single atomic check-and-insert.
type IdentityRepository interface {
	// Create stores a new identity. Returns domain.ErrDuplicateEmail when the
	// normalized email is already taken.
	Create(ctx context.Context, identity *domain.Identity) error
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
