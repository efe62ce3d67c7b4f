package rbac

import (
	"errors"
	"time"
)

// Role represents a high-level permission grouping. Every user holds
// exactly one role.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// RoleGrant ties a permission to a role: the role-level baseline.
type RoleGrant struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserOverride grants a permission to a single user on top of the role
// baseline. Overrides are purely additive; there is no deny record, so
// the effective set is always baseline ∪ overrides and application
// order cannot matter.
type UserOverride struct {
	UserID       int64
	PermissionID int64
	CreatedAt    time.Time
}

var (
	// ErrUnknownUser indicates the user id does not resolve.
	ErrUnknownUser = errors.New("rbac: unknown user")
	// ErrUnknownRole indicates the role id does not resolve.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrUnknownPermission indicates the permission name is not defined.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
)
