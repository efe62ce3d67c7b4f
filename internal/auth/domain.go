package auth

import "time"

// User is the authentication view of an account: credentials, role
// assignment, and the active flag the session gate checks per request.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	RoleID       int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord mirrors a live Redis session into PostgreSQL. The store
// in Redis is authoritative for validation; the registry exists so
// sweeps and audits can enumerate sessions per user after the fact.
type SessionRecord struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
