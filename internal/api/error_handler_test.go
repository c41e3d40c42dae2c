package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{name: "validation", err: domain.NewValidationError("email is required"), wantCode: http.StatusBadRequest, wantMessage: "email is required"},
		{name: "duplicate", err: domain.ErrDuplicateEmail, wantCode: http.StatusConflict, wantMessage: "email already registered"},
		{name: "invalid credentials", err: domain.ErrInvalidCredentials, wantCode: http.StatusUnauthorized, wantMessage: "invalid credentials"},
		{name: "unauthorized", err: domain.ErrUnauthorized, wantCode: http.StatusUnauthorized, wantMessage: "Unauthorized"},
		{name: "throttled", err: domain.ErrTooManyAttempts, wantCode: http.StatusTooManyRequests, wantMessage: "too many failed login attempts"},
		{name: "not found", err: domain.ErrIdentityNotFound, wantCode: http.StatusNotFound, wantMessage: "identity not found"},
		{name: "wrapped", err: fmt.Errorf("login: %w", domain.ErrInvalidCredentials), wantCode: http.StatusUnauthorized, wantMessage: "invalid credentials"},
		{name: "echo error", err: echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), wantCode: http.StatusTooManyRequests, wantMessage: "rate limit exceeded"},
		{name: "store unavailable", err: fmt.Errorf("%w: dial tcp: refused", domain.ErrStoreUnavailable), wantCode: http.StatusInternalServerError, wantMessage: "internal server error"},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantMessage: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp["message"] != tt.wantMessage {
				t.Fatalf("expected message %q, got %q", tt.wantMessage, resp["message"])
			}
		})
	}
}

func TestHTTPErrorHandler_UnauthorizedChallenge(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/me", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(domain.ErrUnauthorized, c)

	if got := rec.Header().Get(echo.HeaderWWWAuthenticate); got != "Bearer" {
		t.Fatalf("expected WWW-Authenticate Bearer, got %q", got)
	}
}

func TestHTTPErrorHandler_DoesNotLeakInternalErrors(t *testing.T) {
	var logs bytes.Buffer
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/register", nil), rec)

	NewHTTPErrorHandler(zerolog.New(&logs))(errors.New("pq: connection reset by peer"), c)

	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "connection reset") {
		t.Fatalf("expected cause to be logged, got %q", logs.String())
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/me", nil), rec)
	_ = c.String(http.StatusOK, "done")

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	if rec.Body.String() != "done" {
		t.Fatalf("committed response was modified: %q", rec.Body.String())
	}
}
