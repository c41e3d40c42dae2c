package ports

import (
	"context"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// PasswordHasher turns secrets into salted, self-describing hash records.
type PasswordHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	// Verify reports whether secret matches record. A mismatch is (false, nil).
	Verify(ctx context.Context, secret, record string) (bool, error)
	// NeedsRehash reports whether record was produced with other parameters
	// than the ones currently configured.
	NeedsRehash(record string) bool
	// DummyRecord is a valid record of the current cost that no caller knows
	// the secret of. It keeps unknown-account logins as slow as real ones.
	DummyRecord() string
}

// TokenIssuer mints access tokens for an identity.
type TokenIssuer interface {
	Issue(identityID string) (domain.Token, error)
}

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(token string) (*domain.Claims, error)
}

type TokenService interface {
	TokenIssuer
	TokenVerifier
}
