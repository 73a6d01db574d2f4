package models

import "time"

// User is the minimal account record this service needs: admin
// authentication for the blacklist surface and the deactivation marker
// consulted by operators. Credential material lives with the external
// authentication service.
type User struct {
	ID            string
	Email         string
	Role          string // "user", "admin"
	Status        string // "active", "deactivated"
	TokenKey      string // per-user secret mixed into admin token signing
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
