package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/clipsocial/social-api/internal/api/middleware"
	"github.com/clipsocial/social-api/internal/core/domain"
)

// ctxIdentity returns the identity attached by the auth gateway. A missing
// identity means the route was registered without the gateway; it is answered
// with 401 rather than served anonymously.
func ctxIdentity(c echo.Context) (string, error) {
	id, ok := middleware.IdentityID(c)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}
