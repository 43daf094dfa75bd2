package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string
	Email        string // lower-cased
	DisplayName  string
	PasswordHash string // argon2id PHC string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
