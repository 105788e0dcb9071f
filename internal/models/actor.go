package models

import "strings"

// Role is the caller's organization role, resolved upstream.
type Role string

const (
	RolePlayer Role = "player"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RolePlayer, RoleStaff, RoleAdmin, RoleOwner:
		return role, true
	}
	return "", false
}

// Actor is a pre-authenticated caller.
type Actor struct {
	ID   int64
	Role Role
}

// IsStaff reports whether the actor holds any elevated organization role.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin || a.Role == RoleOwner
}

// IsAdmin reports whether the actor is an organization admin or owner.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleOwner
}
