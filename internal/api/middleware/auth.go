package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/api/metrics"
	"github.com/clipsocial/social-api/internal/core/ports"
	"github.com/clipsocial/social-api/internal/infrastructure/security/token"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrMalformedHeader   = errors.New("malformed authorization header")
)

// Extractor pulls the raw token out of a request.
type Extractor func(c echo.Context) (string, error)

// BearerExtractor reads "Authorization: Bearer <token>". The scheme is
// matched case-insensitively.
func BearerExtractor(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedHeader
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", ErrMalformedHeader
	}
	return raw, nil
}

// GatewayConfig assembles the auth gateway. Extract defaults to BearerExtractor.
type GatewayConfig struct {
	Extract  Extractor
	Verifier ports.TokenVerifier
	Log      zerolog.Logger
}

type identityKey struct{}

// Gateway authenticates every request it wraps. On success the token subject
// is attached to the request context and can be read with IdentityID. Every
// failure produces the same 401 response; the cause is only logged.
func Gateway(cfg GatewayConfig) echo.MiddlewareFunc {
	if cfg.Verifier == nil {
		panic("middleware: Gateway requires a Verifier")
	}
	extract := cfg.Extract
	if extract == nil {
		extract = BearerExtractor
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := extract(c)
			if err != nil {
				return reject(c, cfg.Log, extractReason(err))
			}

			claims, err := cfg.Verifier.Verify(raw)
			if err != nil {
				return reject(c, cfg.Log, token.Reason(err))
			}

			ctx := context.WithValue(c.Request().Context(), identityKey{}, claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// IdentityID returns the identity attached by Gateway.
func IdentityID(c echo.Context) (string, bool) {
	return IdentityFromContext(c.Request().Context())
}

// IdentityFromContext returns the identity attached by Gateway to ctx.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}

func reject(c echo.Context, log zerolog.Logger, reason string) error {
	metrics.AuthRejectionsTotal.WithLabelValues(reason).Inc()
	log.Info().
		Str("reason", reason).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("request rejected by auth gateway")

	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
}

func extractReason(err error) string {
	if errors.Is(err, ErrMissingCredential) {
		return "missing"
	}
	return "malformed"
}
