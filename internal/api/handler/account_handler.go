package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clipsocial/social-api/internal/core/ports"
)

// AccountHandler serves the authenticated caller's own account.
type AccountHandler struct {
	authService ports.AuthService
}

func NewAccountHandler(authService ports.AuthService) *AccountHandler {
	return &AccountHandler{authService: authService}
}

// Me returns the caller's identity.
//
// @Summary      Current identity
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  identityResponse
// @Failure      401  {object}  messageResponse
// @Failure      404  {object}  messageResponse
// @Router       /me [get]
func (h *AccountHandler) Me(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	identity, err := h.authService.Identity(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, identityResponse{
		ID:        identity.ID,
		Email:     identity.Email,
		CreatedAt: identity.CreatedAt,
	})
}

// ChangePassword replaces the caller's password.
//
// @Summary      Change password
// @Tags         account
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204
// @Failure      400  {object}  messageResponse
// @Failure      401  {object}  messageResponse
// @Router       /me/password [put]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.ChangePassword(c.Request().Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
