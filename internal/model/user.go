package model

import "time"

// Role is the authorization level of a user inside its business.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// Business is a tenant.  Every user belongs to exactly one business.
type Business struct {
	ID        string    // businesses.id (ULID)
	Name      string    // businesses.name
	CreatedAt time.Time // businesses.created_at
}

// User represents an application user record as stored in the `users`
// table.  PasswordHash is a bcrypt hash and never leaves the server.
//
// Fields:
//
//	ID           – primary key identifier (ULID).
//	Email        – unique, lower-cased email address.
//	Name         – display name.
//	PasswordHash – bcrypt hashed password.
//	Role         – ADMIN, MANAGER or USER.
//	BusinessID   – tenant the user belongs to.
//	IsActive     – inactive accounts can neither log in nor refresh.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	BusinessID   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the authorization-relevant projection of the user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, BusinessID: u.BusinessID}
}

// Principal is the authenticated identity derived from a verified token.
// It lives for one request and is never persisted.
type Principal struct {
	ID         string
	Role       Role
	BusinessID string
}
