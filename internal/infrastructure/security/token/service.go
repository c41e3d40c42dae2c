// Package token issues and verifies stateless HMAC-signed access tokens.
//
// The payload carries only the registered claims sub, iat and exp. The
// signing algorithm is fixed per deployment; the alg header of an incoming
// token is checked against it and never used to choose a key.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipsocial/social-api/internal/core/domain"
)

// MinSecretLen is the shortest accepted signing secret in bytes.
const MinSecretLen = 32

var (
	ErrMalformed    = errors.New("token: malformed")
	ErrBadSignature = errors.New("token: bad signature")
	ErrExpired      = errors.New("token: expired")
	ErrMissingClaim = errors.New("token: missing claim")
)

// Config configures a Service.
type Config struct {
	Secret []byte
	// Method is one of HS256, HS384 or HS512.
	Method string
	TTL    time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service implements ports.TokenService. It holds no mutable state after
// construction and is safe for concurrent use.
type Service struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("token: secret must be at least %d bytes (got %d)", MinSecretLen, len(cfg.Secret))
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive (got %s)", cfg.TTL)
	}

	var method jwt.SigningMethod
	switch cfg.Method {
	case "", jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token: unsupported signing method %q (use HS256, HS384 or HS512)", cfg.Method)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	s := &Service{
		secret: secret,
		method: method,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for identityID valid for the configured TTL.
func (s *Service) Issue(identityID string) (domain.Token, error) {
	if identityID == "" {
		return domain.Token{}, fmt.Errorf("%w: empty subject", ErrMissingClaim)
	}

	now := s.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(s.ttl))

	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return domain.Token{}, fmt.Errorf("token: sign: %w", err)
	}
	return domain.Token{Value: signed, ExpiresAt: expiresAt.Time}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Errors are one of ErrMalformed, ErrBadSignature, ErrExpired or
// ErrMissingClaim.
func (s *Service) Verify(raw string) (*domain.Claims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.keyFunc,
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	out := &domain.Claims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func (s *Service) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != s.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
	}
	return s.secret, nil
}

// classify maps jwt parser errors onto the package's failure kinds. The
// signature is checked before the time claims, so a tampered expired token
// reports ErrBadSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMissingClaim, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// Reason returns a short label for a Verify error, for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	default:
		return "malformed"
	}
}
