package handler

import "time"

// ── Request bodies ────────────────────────────────────────────────────────────

// credentialsRequest only checks presence of the email; the service
// normalizes it before checking the format.
type credentialsRequest struct {
	Email    string `json:"email"    validate:"required"              example:"a@x.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"Secure1!"`
}

// loginRequest carries no rules: every bad login, empty fields included,
// is answered by the service as invalid credentials.
type loginRequest struct {
	Email    string `json:"email"    example:"a@x.com"`
	Password string `json:"password" example:"Secure1!"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
}

// ── Response bodies ───────────────────────────────────────────────────────────

type registerResponse struct {
	ID    string `json:"id"    example:"01JGQ4W7Z8X9Y0A1B2C3D4E5F6"`
	Token string `json:"token"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type identityResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}
