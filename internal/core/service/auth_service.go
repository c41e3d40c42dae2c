package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/api/metrics"
	"github.com/clipsocial/social-api/internal/core/domain"
	"github.com/clipsocial/social-api/internal/core/ports"
)

const (
	minPasswordLen = 8
	// bcrypt only reads the first 72 bytes of a secret.
	maxPasswordBytes = 72
	maxEmailLen      = 254
)

// AuthService implements registration, login and password management.
type AuthService struct {
	repo     ports.IdentityRepository
	hasher   ports.PasswordHasher
	tokens   ports.TokenIssuer
	throttle ports.LoginThrottle
	audit    ports.AuthEventRecorder
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService wires the flow. throttle and audit may be nil, which disables
// login throttling and the audit trail respectively.
func NewAuthService(
	repo ports.IdentityRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	throttle ports.LoginThrottle,
	audit ports.AuthEventRecorder,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		audit:    audit,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// Register creates an identity and returns it together with an access token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*ports.RegisterResult, error) {
	email = domain.NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	_, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		return nil, domain.ErrDuplicateEmail
	case !errors.Is(err, domain.ErrIdentityNotFound):
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, storeError(err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	identity := &domain.Identity{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// a concurrent registration can win between the lookup and the insert;
	// the store's unique constraint reports it as ErrDuplicateEmail
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			return nil, domain.ErrDuplicateEmail
		}
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, storeError(err)
	}

	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue token: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	s.record(domain.EventRegistered, identity.ID, email)
	s.log.Info().Str("identity_id", identity.ID).Msg("identity registered")

	return &ports.RegisterResult{Identity: identity, Token: token}, nil
}

// Login authenticates email and password. Unknown email and wrong password
// both return ErrInvalidCredentials after exactly one hash comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, email)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("login throttle check failed, allowing attempt")
		case !allowed:
			metrics.LoginsTotal.WithLabelValues("throttled").Inc()
			s.record(domain.EventLoginThrottled, "", email)
			return nil, domain.ErrTooManyAttempts
		}
	}

	identity, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		// equalise timing with the known-email path
		_, _ = s.hasher.Verify(ctx, password, s.hasher.DummyRecord())
		s.loginFailed(ctx, "", email)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, storeError(err)
	}

	ok, err := s.checkPassword(ctx, identity, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !ok {
		s.loginFailed(ctx, identity.ID, email)
		return nil, domain.ErrInvalidCredentials
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.log.Warn().Err(err).Str("identity_id", identity.ID).Msg("failed to reset login throttle")
		}
	}
	if s.hasher.NeedsRehash(identity.PasswordHash) {
		s.rehash(ctx, identity.ID, password)
	}

	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.record(domain.EventLoginSucceeded, identity.ID, email)

	return &ports.LoginResult{IdentityID: identity.ID, Token: token}, nil
}

// ChangePassword replaces the password of identityID after checking current.
func (s *AuthService) ChangePassword(ctx context.Context, identityID, current, next string) error {
	identity, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return err
		}
		return storeError(err)
	}

	ok, err := s.checkPassword(ctx, identity, current)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	if err := s.validatePassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return err
		}
		return storeError(err)
	}

	s.record(domain.EventPasswordChanged, identity.ID, identity.Email)
	s.log.Info().Str("identity_id", identity.ID).Msg("password changed")
	return nil
}

// Identity reads the current state of an identity from the store.
func (s *AuthService) Identity(ctx context.Context, identityID string) (*domain.Identity, error) {
	identity, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, err
		}
		return nil, storeError(err)
	}
	return identity, nil
}

// checkPassword verifies secret against the stored record. A record the
// hasher cannot read counts as a mismatch; only cancellation is returned.
func (s *AuthService) checkPassword(ctx context.Context, identity *domain.Identity, secret string) (bool, error) {
	ok, err := s.hasher.Verify(ctx, secret, identity.PasswordHash)
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, fmt.Errorf("verify password: %w", err)
	}
	s.log.Error().Err(err).Str("identity_id", identity.ID).Msg("stored password record is unreadable")
	return false, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identityID, email string) {
	metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
	s.record(domain.EventLoginFailed, identityID, email)

	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("failed to record login failure")
	}
}

// rehash upgrades a record to the current work factor. Failures are logged
// and the login proceeds with the old record in place.
func (s *AuthService) rehash(ctx context.Context, identityID, secret string) {
	hash, err := s.hasher.Hash(ctx, secret)
	if err != nil {
		s.log.Warn().Err(err).Str("identity_id", identityID).Msg("password rehash failed")
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, identityID, hash); err != nil {
		s.log.Warn().Err(err).Str("identity_id", identityID).Msg("failed to store rehashed password")
		return
	}
	metrics.PasswordRehashesTotal.Inc()
	s.log.Debug().Str("identity_id", identityID).Msg("password record upgraded")
}

func (s *AuthService) record(typ domain.AuthEventType, identityID, email string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(domain.AuthEvent{
		Type:       typ,
		IdentityID: identityID,
		Email:      email,
		OccurredAt: s.now().UTC(),
	})
}

func (s *AuthService) validateEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return domain.NewValidationError("email must be a valid address")
	}
	if len(email) > maxEmailLen {
		return domain.NewValidationError(fmt.Sprintf("email must be at most %d characters", maxEmailLen))
	}
	return nil
}

func (s *AuthService) validatePassword(password string) error {
	if err := s.validate.Var(password, fmt.Sprintf("required,min=%d", minPasswordLen)); err != nil {
		return domain.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		return domain.NewValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
