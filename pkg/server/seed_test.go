package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/campus/pkg/model"
)

const seedDoc = `
users:
  - {login: t001, password: secret1, display_name: Dr. Lee, role: teacher}
  - {login: s001, password: secret1}
books:
  - {isbn: "978-0134190440", title: The Go Programming Language, author: Donovan, copies: 3}
products:
  - {name: Notebook, price: 250, stock: 10}
courses:
  - {code: cs101, name: Intro to CS, capacity: 30, teacher: t001}
`

func TestImportSeed(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestServer(t, nil, nil)

	res, err := ImportSeed(ctx, []byte(seedDoc), svc)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Created: 5}, res)

	teacher, err := svc.Accounts.Lookup(ctx, "t001")
	require.NoError(t, err)
	assert.Equal(t, model.RoleTeacher, teacher.Role)

	courses, err := svc.Courses.Courses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, teacher.UserID, courses[0].TeacherID)

	// Users and courses are keyed; a second run skips them.
	res, err = ImportSeed(ctx, []byte(seedDoc), svc)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Created: 2, Skipped: 3}, res)
}

func TestImportSeedErrors(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestServer(t, nil, nil)

	_, err := ImportSeed(ctx, []byte("users: [{login: s001, password: secret1, role: dean}]"), svc)
	assert.ErrorIs(t, err, model.ErrInvalidRole)

	_, err = ImportSeed(ctx, []byte("courses: [{code: x1, name: X, capacity: 3, teacher: nobody}]"), svc)
	assert.Error(t, err)

	_, err = ImportSeed(ctx, []byte("users: {"), svc)
	assert.Error(t, err)
}

func TestExportUsersYAML(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "s001", model.RoleStudent)
	createUser(t, svc, "t001", model.RoleTeacher)

	data, err := ExportUsersYAML(ctx, svc.Accounts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret1")

	var export UsersExport
	require.NoError(t, yaml.Unmarshal(data, &export))
	require.Len(t, export.Users, 2)
	roles := map[string]string{}
	for _, u := range export.Users {
		roles[u.Login] = u.Role
	}
	assert.Equal(t, map[string]string{"s001": "STUDENT", "t001": "TEACHER"}, roles)
}
