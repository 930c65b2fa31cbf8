// Package rbac provides role-based access control checks.
package rbac

import (
	"errors"
	"strings"

	"github.com/NicolasHaas/campus/pkg/model"
)

var (
	// ErrUnauthenticated is returned when an opcode needs a session and none exists.
	ErrUnauthenticated = errors.New("rbac: login required")
	// ErrForbidden is returned when the session's role does not satisfy the rule.
	ErrForbidden = errors.New("rbac: permission denied")
)

// Rule is the access tag attached to one opcode in the dispatch table.
type Rule struct {
	Session     bool         // requires an authenticated session
	Roles       []model.Role // any one of these (directly or via the policy) is required
	SelfOrAdmin bool         // payload target must be the caller unless the caller is admin
}

// Public allows anonymous callers.
var Public = Rule{}

// Authenticated requires any logged-in session.
var Authenticated = Rule{Session: true}

// SelfOrAdmin requires a session acting on its own data, or an admin.
var SelfOrAdmin = Rule{Session: true, SelfOrAdmin: true}

// RequireRole requires a session holding one of roles.
func RequireRole(roles ...model.Role) Rule {
	return Rule{Session: true, Roles: roles}
}

// Policy lists, per role, which other roles it implicitly satisfies.
// It is supplied to the dispatcher rather than hard-coded as a hierarchy.
type Policy struct {
	satisfies map[model.Role]map[model.Role]bool
	admins    map[model.Role]bool
}

// NewPolicy builds a policy from a role -> implied roles matrix. Roles listed
// in admins pass every SelfOrAdmin check.
func NewPolicy(matrix map[model.Role][]model.Role, admins ...model.Role) *Policy {
	p := &Policy{
		satisfies: make(map[model.Role]map[model.Role]bool, len(matrix)),
		admins:    make(map[model.Role]bool, len(admins)),
	}
	for role, implied := range matrix {
		set := make(map[model.Role]bool, len(implied))
		for _, r := range implied {
			set[r] = true
		}
		p.satisfies[role] = set
	}
	for _, r := range admins {
		p.admins[r] = true
	}
	return p
}

// DefaultPolicy lets ADMIN satisfy every role requirement. TEACHER does not
// satisfy STUDENT-only operations (teachers do not enroll in courses).
func DefaultPolicy() *Policy {
	return NewPolicy(map[model.Role][]model.Role{
		model.RoleAdmin: {model.RoleStudent, model.RoleTeacher},
	}, model.RoleAdmin)
}

// Satisfies reports whether holding role meets a requirement for required.
func (p *Policy) Satisfies(role, required model.Role) bool {
	if role == required {
		return true
	}
	return p.satisfies[role][required]
}

// IsAdmin reports whether role passes SelfOrAdmin checks for other users.
func (p *Policy) IsAdmin(role model.Role) bool {
	return p.admins[role]
}

// Check evaluates the session-independent part of a rule: whether a session
// exists and whether its role qualifies. SelfOrAdmin is checked separately
// once the payload has been decoded.
func (p *Policy) Check(rule Rule, authenticated bool, role model.Role) error {
	if !rule.Session && len(rule.Roles) == 0 {
		return nil
	}
	if !authenticated {
		return ErrUnauthenticated
	}
	if len(rule.Roles) == 0 {
		return nil
	}
	for _, required := range rule.Roles {
		if p.Satisfies(role, required) {
			return nil
		}
	}
	return &DeniedError{Role: role, Required: rule.Roles}
}

// CheckTarget enforces SelfOrAdmin for a decoded payload target.
func (p *Policy) CheckTarget(callerID, targetID int64, role model.Role) error {
	if targetID == callerID || p.IsAdmin(role) {
		return nil
	}
	return ErrForbidden
}

// DeniedError describes a role mismatch. It matches ErrForbidden.
type DeniedError struct {
	Role     model.Role
	Required []model.Role
}

func (e *DeniedError) Error() string {
	names := make([]string, len(e.Required))
	for i, r := range e.Required {
		names[i] = r.String()
	}
	return "permission denied: requires " + strings.Join(names, " or ") + ", have " + e.Role.String()
}

func (e *DeniedError) Is(target error) bool { return target == ErrForbidden }
