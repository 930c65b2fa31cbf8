package model

import (
	"fmt"
	"strings"
)

// Role represents a user's permission level.
type Role int

const (
	RoleStudent Role = iota // Default role: library, store, forum, own courses
	RoleTeacher             // Creates courses and records grades
	RoleAdmin               // Manages accounts and catalog, broadcasts announcements
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "STUDENT"
	case RoleTeacher:
		return "TEACHER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// ParseRole converts a role name (case-insensitive) to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STUDENT":
		return RoleStudent, nil
	case "TEACHER":
		return RoleTeacher, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return RoleStudent, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid returns true if the role is a recognised value.
func (r Role) Valid() bool {
	return r >= RoleStudent && r <= RoleAdmin
}

// MarshalText encodes the role by name so payloads stay readable.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
