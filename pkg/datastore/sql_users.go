package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

const userColumns = "id, login, display_name, role, password_hash, password_salt, balance, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var roleInt int
	var createdAt string
	if err := row.Scan(&u.ID, &u.Login, &u.DisplayName, &roleInt, &u.PasswordHash, &u.PasswordSalt, &u.Balance, &createdAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(roleInt)
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parsed
	return u, nil
}

// CreateUser inserts a user and fills in its ID and CreatedAt.
func (s *baseProvider) CreateUser(ctx context.Context, user *model.User) error {
	if err := model.ValidateLogin(user.Login); err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	if !user.Role.Valid() {
		return fmt.Errorf("datastore: create user: %w", model.ErrInvalidRole)
	}
	res, err := s.ExecContext(ctx,
		"INSERT INTO users (login, display_name, role, password_hash, password_salt, balance) VALUES (?, ?, ?, ?, ?, ?)",
		user.Login, user.DisplayName, int(user.Role), user.PasswordHash, user.PasswordSalt, user.Balance)
	if isUniqueViolation(err) {
		return fmt.Errorf("datastore: create user %q: %w", user.Login, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	user.ID, _ = res.LastInsertId()
	user.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// GetUserByLogin retrieves a user by login. Returns (nil, nil) if not found.
func (s *baseProvider) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(s.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE login = ?", login))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID. Returns (nil, nil) if not found.
func (s *baseProvider) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	return u, nil
}

// ListUsers returns a page of users ordered by ID.
func (s *baseProvider) ListUsers(ctx context.Context, offset, limit int) ([]model.User, error) {
	rows, err := s.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of accounts.
func (s *baseProvider) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("datastore: count users: %w", err)
	}
	return n, nil
}

func (s *baseProvider) UpdateUserDisplayName(ctx context.Context, id int64, name string) error {
	res, err := s.ExecContext(ctx, "UPDATE users SET display_name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("datastore: update display name: %w", err)
	}
	return requireAffected(res, "update display name")
}

func (s *baseProvider) UpdateUserPassword(ctx context.Context, id int64, hash, salt []byte) error {
	res, err := s.ExecContext(ctx, "UPDATE users SET password_hash = ?, password_salt = ? WHERE id = ?", hash, salt, id)
	if err != nil {
		return fmt.Errorf("datastore: update password: %w", err)
	}
	return requireAffected(res, "update password")
}

func (s *baseProvider) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("datastore: delete user: %w", err)
	}
	return requireAffected(res, "delete user")
}

// AdjustBalance adds delta to the user's balance. A result below zero
// yields ErrExhausted and leaves the balance unchanged.
func (s *baseProvider) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	res, err := s.ExecContext(ctx, "UPDATE users SET balance = balance + ? WHERE id = ? AND balance + ? >= 0", delta, id, delta)
	if err != nil {
		return 0, fmt.Errorf("datastore: adjust balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		u, err := s.GetUserByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if u == nil {
			return 0, fmt.Errorf("datastore: adjust balance: %w", ErrNotFound)
		}
		return u.Balance, fmt.Errorf("datastore: adjust balance: %w", ErrExhausted)
	}
	var balance int64
	if err := s.QueryRowContext(ctx, "SELECT balance FROM users WHERE id = ?", id).Scan(&balance); err != nil {
		return 0, fmt.Errorf("datastore: read balance: %w", err)
	}
	return balance, nil
}
