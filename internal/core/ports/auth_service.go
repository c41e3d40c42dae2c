package ports

import (
	"context"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// RegisterResult is returned by a successful registration.
type RegisterResult struct {
	Identity *domain.Identity
	Token    domain.Token
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	IdentityID string
	Token      domain.Token
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*RegisterResult, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) error
	Identity(ctx context.Context, identityID string) (*domain.Identity, error)
}
