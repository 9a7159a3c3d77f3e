package auth

import (
	"strings"

	"liveclass/internal/apperr"
)

// Role is a principal's resolved role.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a textual role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	default:
		return "", apperr.Invalid("role", "must be student, teacher or admin")
	}
}

// Principal is an authenticated identity plus its resolved role.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Is reports whether the principal holds any of roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// CanManage reports whether the principal may act on other users' records.
func (p Principal) CanManage() bool {
	return p.Is(RoleTeacher, RoleAdmin)
}

// Require returns ErrRoleMismatch unless the principal holds one of roles.
func (p Principal) Require(roles ...Role) error {
	if p.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	if !p.Is(roles...) {
		return apperr.ErrRoleMismatch
	}
	return nil
}
