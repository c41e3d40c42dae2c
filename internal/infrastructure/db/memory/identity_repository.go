// Package memory provides an in-process identity store for development and
// tests. Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/clipsocial/social-api/internal/core/domain"
)

type IdentityRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
}

func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		byID:    make(map[string]*domain.Identity),
		byEmail: make(map[string]string),
	}
}

// EnsureSchema is a no-op; it exists so every driver can be started the same way.
func (r *IdentityRepository) EnsureSchema(context.Context) error {
	return nil
}

func (r *IdentityRepository) Create(_ context.Context, identity *domain.Identity) error {
	key := domain.NormalizeEmail(identity.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[key]; taken {
		return domain.ErrDuplicateEmail
	}
	stored := *identity
	r.byID[identity.ID] = &stored
	r.byEmail[key] = identity.ID
	return nil
}

func (r *IdentityRepository) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *IdentityRepository) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	out := *identity
	return &out, nil
}

func (r *IdentityRepository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

// Ping always succeeds.
func (r *IdentityRepository) Ping(context.Context) error { return nil }

func (r *IdentityRepository) Name() string { return "memory" }
