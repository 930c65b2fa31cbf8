package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxLoginLength       = 32
	MaxDisplayNameLength = 64
	MinPasswordLength    = 6
)

var ErrLoginEmpty = errors.New("login must not be empty")
var ErrLoginTooLong = fmt.Errorf("login must not exceed %d characters", MaxLoginLength)
var ErrLoginInvalidChars = errors.New("login must contain only alphanumeric characters, underscores, or hyphens")
var ErrDisplayNameInvalid = fmt.Errorf("display name must be 1-%d characters", MaxDisplayNameLength)
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
var ErrInvalidRole = errors.New("invalid role: must be STUDENT, TEACHER or ADMIN")

// User represents a registered account, including its secret material.
// It never leaves the server; responses carry a Profile instead.
type User struct {
	ID           int64
	Login        string // account number used to log in, e.g. "s001"
	DisplayName  string
	Role         Role
	PasswordHash []byte
	PasswordSalt []byte
	Balance      int64 // store balance in cents
	CreatedAt    time.Time
}

// Profile is the non-secret view of a user cached in a Session.
type Profile struct {
	UserID      int64     `json:"user_id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	// Password is always null on the wire; older clients expect the key.
	Password *string `json:"password"`
}

// Profile returns the non-secret view of the user.
func (u *User) Profile() Profile {
	return Profile{
		UserID:      u.ID,
		Login:       u.Login,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// ValidateLogin checks that a login is 1-32 ASCII alphanumeric, underscore,
// or hyphen characters.
func ValidateLogin(login string) error {
	if len(login) == 0 {
		return ErrLoginEmpty
	}
	if len(login) > MaxLoginLength {
		return ErrLoginTooLong
	}
	for _, r := range login {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrLoginInvalidChars
		}
	}
	return nil
}

// ValidateDisplayName checks length after trimming surrounding space.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || n > MaxDisplayNameLength {
		return ErrDisplayNameInvalid
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
