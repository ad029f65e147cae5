package auth

import "time"

// Profile represents an account row in the profiles table. The stored Role
// is untrusted until it passes through the identity resolver.
type Profile struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
