package auth

import "time"

// User represents an authenticated user account. Role is the single real
// role the session carries.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
