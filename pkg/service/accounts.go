package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/NicolasHaas/campus/pkg/crypto"
	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

const bootstrapAdminLogin = "admin"

type AccountService struct {
	db datastore.DataProviderFactory
}

func NewAccountService(db datastore.DataProviderFactory) *AccountService {
	return &AccountService{db: db}
}

var _ Accounts = (*AccountService)(nil)

func (s *AccountService) Authenticate(ctx context.Context, login, password string) (model.Profile, error) {
	u, err := s.db.NonTx().GetUserByLogin(ctx, login)
	if err != nil {
		return model.Profile{}, err
	}
	// Unknown login and wrong password are indistinguishable to the caller.
	if u == nil || !crypto.VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return model.Profile{}, ErrBadCredentials
	}
	return u.Profile(), nil
}

func (s *AccountService) Register(ctx context.Context, login, password, displayName string) (model.Profile, error) {
	return s.CreateUser(ctx, login, password, displayName, model.RoleStudent)
}

func (s *AccountService) CreateUser(ctx context.Context, login, password, displayName string, role model.Role) (model.Profile, error) {
	if err := model.ValidateLogin(login); err != nil {
		return model.Profile{}, invalid(err)
	}
	if err := model.ValidatePassword(password); err != nil {
		return model.Profile{}, invalid(err)
	}
	if displayName == "" {
		displayName = login
	}
	if err := model.ValidateDisplayName(displayName); err != nil {
		return model.Profile{}, invalid(err)
	}
	if !role.Valid() {
		return model.Profile{}, invalid(model.ErrInvalidRole)
	}

	hash, salt, err := crypto.NewPasswordHash(password)
	if err != nil {
		return model.Profile{}, fmt.Errorf("service: hash password: %w", err)
	}
	u := &model.User{
		Login:        login,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         role,
		PasswordHash: hash,
		PasswordSalt: salt,
	}
	err = withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return model.Profile{}, translate(err, "login "+login)
	}
	return u.Profile(), nil
}

func (s *AccountService) Profile(ctx context.Context, userID int64) (model.Profile, error) {
	u, err := s.db.NonTx().GetUserByID(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	if u == nil {
		return model.Profile{}, fail(ErrNotFound, "user %d not found", userID)
	}
	return u.Profile(), nil
}

func (s *AccountService) Lookup(ctx context.Context, login string) (model.Profile, error) {
	u, err := s.db.NonTx().GetUserByLogin(ctx, login)
	if err != nil {
		return model.Profile{}, err
	}
	if u == nil {
		return model.Profile{}, fail(ErrNotFound, "user %q not found", login)
	}
	return u.Profile(), nil
}

func (s *AccountService) UpdateDisplayName(ctx context.Context, userID int64, name string) (model.Profile, error) {
	if err := model.ValidateDisplayName(name); err != nil {
		return model.Profile{}, invalid(err)
	}
	var u *model.User
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		if err := tx.UpdateUserDisplayName(ctx, userID, strings.TrimSpace(name)); err != nil {
			return err
		}
		var err error
		u, err = tx.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return model.Profile{}, translate(err, "user")
	}
	return u.Profile(), nil
}

func (s *AccountService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string, verifyOld bool) error {
	if err := model.ValidatePassword(newPassword); err != nil {
		return invalid(err)
	}
	hash, salt, err := crypto.NewPasswordHash(newPassword)
	if err != nil {
		return fmt.Errorf("service: hash password: %w", err)
	}
	err = withTx(ctx, s.db, func(tx datastore.DataStore) error {
		u, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return datastore.ErrNotFound
		}
		if verifyOld && !crypto.VerifyPassword(oldPassword, u.PasswordSalt, u.PasswordHash) {
			return fail(ErrForbidden, "current password is incorrect")
		}
		return tx.UpdateUserPassword(ctx, userID, hash, salt)
	})
	return translate(err, "user")
}

func (s *AccountService) ListUsers(ctx context.Context, offset, limit int) ([]model.Profile, error) {
	users, err := s.db.NonTx().ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	profiles := make([]model.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	return profiles, nil
}

func (s *AccountService) DeleteUser(ctx context.Context, userID int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.DeleteUser(ctx, userID)
	})
	return translate(err, "user")
}

func (s *AccountService) EnsureAdmin(ctx context.Context) (string, error) {
	n, err := s.db.NonTx().CountUsers(ctx)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", nil
	}
	password, err := crypto.GeneratePassword(18)
	if err != nil {
		return "", fmt.Errorf("service: generate password: %w", err)
	}
	if _, err := s.CreateUser(ctx, bootstrapAdminLogin, password, "Administrator", model.RoleAdmin); err != nil {
		return "", err
	}
	return password, nil
}
