package domain

import (
	"strings"
	"time"
)

// Identity models a registered account.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Claims are the verified contents of an access token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a signed access credential together with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// NormalizeEmail returns the canonical form used for storage and lookups.
// Email comparison is case-insensitive everywhere in the system.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
