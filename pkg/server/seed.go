package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/service"
)

// SeedUser is one account in a seed file.
type SeedUser struct {
	Login       string `yaml:"login"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name,omitempty"`
	Role        string `yaml:"role,omitempty"` // STUDENT when empty
}

type SeedBook struct {
	ISBN   string `yaml:"isbn,omitempty"`
	Title  string `yaml:"title"`
	Author string `yaml:"author,omitempty"`
	Copies int    `yaml:"copies"`
}

type SeedProduct struct {
	Name  string `yaml:"name"`
	Price int64  `yaml:"price"`
	Stock int    `yaml:"stock"`
}

type SeedCourse struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Teacher  string `yaml:"teacher"` // teacher login
}

// Seed is the top-level YAML document accepted by `campusd seed`.
type Seed struct {
	Users    []SeedUser    `yaml:"users"`
	Books    []SeedBook    `yaml:"books"`
	Products []SeedProduct `yaml:"products"`
	Courses  []SeedCourse  `yaml:"courses"`
}

// SeedResult counts what an import created and skipped.
type SeedResult struct {
	Created int
	Skipped int
}

// LoadSeedFile reads and applies a seed YAML file.
func LoadSeedFile(ctx context.Context, path string, svc service.Set) (SeedResult, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return SeedResult{}, fmt.Errorf("read seed file: %w", err)
	}
	return ImportSeed(ctx, data, svc)
}

// ImportSeed applies a seed document. Users and courses that already exist
// are skipped, so re-running a seed only adds what is missing. Books and
// products have no natural key and are always added.
func ImportSeed(ctx context.Context, data []byte, svc service.Set) (SeedResult, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedResult{}, fmt.Errorf("parse seed: %w", err)
	}

	var res SeedResult
	record := func(what string, err error) error {
		switch {
		case err == nil:
			res.Created++
			return nil
		case errors.Is(err, service.ErrConflict):
			slog.Debug("seed: already present", "item", what)
			res.Skipped++
			return nil
		default:
			return fmt.Errorf("seed %s: %w", what, err)
		}
	}

	for _, u := range seed.Users {
		role := model.RoleStudent
		if u.Role != "" {
			r, err := model.ParseRole(u.Role)
			if err != nil {
				return res, fmt.Errorf("seed user %s: %w", u.Login, err)
			}
			role = r
		}
		_, err := svc.Accounts.CreateUser(ctx, u.Login, u.Password, u.DisplayName, role)
		if err := record("user "+u.Login, err); err != nil {
			return res, err
		}
	}
	for _, b := range seed.Books {
		_, err := svc.Library.AddBook(ctx, model.Book{ISBN: b.ISBN, Title: b.Title, Author: b.Author, Copies: b.Copies})
		if err := record("book "+b.Title, err); err != nil {
			return res, err
		}
	}
	for _, p := range seed.Products {
		_, err := svc.Store.AddProduct(ctx, model.Product{Name: p.Name, Price: p.Price, Stock: p.Stock})
		if err := record("product "+p.Name, err); err != nil {
			return res, err
		}
	}
	for _, c := range seed.Courses {
		teacher, err := svc.Accounts.Lookup(ctx, c.Teacher)
		if err != nil {
			return res, fmt.Errorf("seed course %s: teacher %q: %w", c.Code, c.Teacher, err)
		}
		// Seeding acts with administrator rights on behalf of the named teacher.
		actor := service.Actor{UserID: teacher.UserID, Role: model.RoleAdmin}
		_, err = svc.Courses.CreateCourse(ctx, actor, model.Course{Code: c.Code, Name: c.Name, Capacity: c.Capacity, TeacherID: teacher.UserID})
		if err := record("course "+c.Code, err); err != nil {
			return res, err
		}
	}

	slog.Info("seed imported", "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// UserYAML is one account in a user export. Secrets are never exported.
type UserYAML struct {
	ID          int64  `yaml:"id"`
	Login       string `yaml:"login"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
	CreatedAt   string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML pages through every account and renders it as YAML.
func ExportUsersYAML(ctx context.Context, accounts service.Accounts) ([]byte, error) {
	const page = 200
	export := UsersExport{}
	for offset := 0; ; offset += page {
		users, err := accounts.ListUsers(ctx, offset, page)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			export.Users = append(export.Users, UserYAML{
				ID:          u.UserID,
				Login:       u.Login,
				DisplayName: u.DisplayName,
				Role:        u.Role.String(),
				CreatedAt:   u.CreatedAt.Format("2006-01-02T15:04:05Z"),
			})
		}
		if len(users) < page {
			break
		}
	}
	return yaml.Marshal(&export)
}
