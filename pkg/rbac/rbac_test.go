package rbac

import (
	"errors"
	"testing"

	"github.com/NicolasHaas/campus/pkg/model"
)

func TestCheck(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name          string
		rule          Rule
		authenticated bool
		role          model.Role
		want          error
	}{
		{"public anonymous", Public, false, model.RoleStudent, nil},
		{"session anonymous", Authenticated, false, model.RoleStudent, ErrUnauthenticated},
		{"session student", Authenticated, true, model.RoleStudent, nil},
		{"role anonymous", RequireRole(model.RoleAdmin), false, model.RoleStudent, ErrUnauthenticated},
		{"admin only as student", RequireRole(model.RoleAdmin), true, model.RoleStudent, ErrForbidden},
		{"admin only as teacher", RequireRole(model.RoleAdmin), true, model.RoleTeacher, ErrForbidden},
		{"admin only as admin", RequireRole(model.RoleAdmin), true, model.RoleAdmin, nil},
		{"teacher as admin", RequireRole(model.RoleTeacher), true, model.RoleAdmin, nil},
		{"student as teacher", RequireRole(model.RoleStudent), true, model.RoleTeacher, ErrForbidden},
		{"student as admin", RequireRole(model.RoleStudent), true, model.RoleAdmin, nil},
		{"either role", RequireRole(model.RoleStudent, model.RoleTeacher), true, model.RoleTeacher, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.rule, tt.authenticated, tt.role)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Check = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Check = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCustomPolicyHasNoImplicitHierarchy(t *testing.T) {
	p := NewPolicy(nil)
	if err := p.Check(RequireRole(model.RoleTeacher), true, model.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty policy let admin act as teacher: %v", err)
	}
	if p.IsAdmin(model.RoleAdmin) {
		t.Fatalf("empty policy treats ADMIN as admin")
	}
}

func TestCheckTarget(t *testing.T) {
	p := DefaultPolicy()
	if err := p.CheckTarget(5, 5, model.RoleStudent); err != nil {
		t.Errorf("self: %v", err)
	}
	if err := p.CheckTarget(5, 6, model.RoleStudent); !errors.Is(err, ErrForbidden) {
		t.Errorf("other as student = %v", err)
	}
	if err := p.CheckTarget(5, 6, model.RoleTeacher); !errors.Is(err, ErrForbidden) {
		t.Errorf("other as teacher = %v", err)
	}
	if err := p.CheckTarget(5, 6, model.RoleAdmin); err != nil {
		t.Errorf("other as admin: %v", err)
	}
}

func TestDeniedErrorMessage(t *testing.T) {
	err := DefaultPolicy().Check(RequireRole(model.RoleTeacher), true, model.RoleStudent)
	want := "permission denied: requires TEACHER, have STUDENT"
	if err == nil || err.Error() != want {
		t.Errorf("message = %v, want %q", err, want)
	}
}
