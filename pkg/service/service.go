// Package service holds the domain operations the connection handlers call.
// Each call is stateless: it acquires what it needs from the datastore
// factory and releases it before returning.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

// Domain failure kinds. Errors returned by services wrap exactly one of these
// unless something unexpected happened.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("operation not permitted")
	ErrInvalid        = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
	ErrBadCredentials = errors.New("invalid login or password")
)

// Error is a domain failure with a message meant for the client.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Actor identifies the authenticated caller for operations whose rules
// depend on who is asking.
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

type Accounts interface {
	Authenticate(ctx context.Context, login, password string) (model.Profile, error)
	Register(ctx context.Context, login, password, displayName string) (model.Profile, error)
	CreateUser(ctx context.Context, login, password, displayName string, role model.Role) (model.Profile, error)
	Profile(ctx context.Context, userID int64) (model.Profile, error)
	Lookup(ctx context.Context, login string) (model.Profile, error)
	UpdateDisplayName(ctx context.Context, userID int64, name string) (model.Profile, error)
	// ChangePassword verifies oldPassword unless verifyOld is false.
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string, verifyOld bool) error
	ListUsers(ctx context.Context, offset, limit int) ([]model.Profile, error)
	DeleteUser(ctx context.Context, userID int64) error
	// EnsureAdmin creates an "admin" account with a random password when no
	// account exists yet. The password is returned only when one was created.
	EnsureAdmin(ctx context.Context) (password string, err error)
}

type Library interface {
	Search(ctx context.Context, query string, limit int) ([]model.Book, error)
	Book(ctx context.Context, id int64) (*model.Book, error)
	Borrow(ctx context.Context, userID, bookID int64) (*model.Loan, error)
	Return(ctx context.Context, userID, bookID int64) (*model.Loan, error)
	Loans(ctx context.Context, userID int64) ([]model.Loan, error)
	AddBook(ctx context.Context, book model.Book) (*model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

type Store interface {
	Products(ctx context.Context, offset, limit int) ([]model.Product, error)
	Product(ctx context.Context, id int64) (*model.Product, error)
	AddToCart(ctx context.Context, userID, productID int64, quantity int) ([]model.CartItem, error)
	RemoveFromCart(ctx context.Context, userID, productID int64) ([]model.CartItem, error)
	Cart(ctx context.Context, userID int64) ([]model.CartItem, error)
	Checkout(ctx context.Context, userID int64) (*model.Order, error)
	Orders(ctx context.Context, userID int64) ([]model.Order, error)
	Balance(ctx context.Context, userID int64) (int64, error)
	Recharge(ctx context.Context, userID, amount int64) (int64, error)
	AddProduct(ctx context.Context, p model.Product) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

type Forum interface {
	Threads(ctx context.Context, offset, limit int) ([]model.Thread, error)
	Thread(ctx context.Context, id int64, offset, limit int) (*model.Thread, error)
	CreateThread(ctx context.Context, authorID int64, title, body string) (*model.Thread, error)
	Reply(ctx context.Context, authorID, threadID int64, body string) (*model.Post, error)
	// DeleteThread is allowed for the thread's author and administrators.
	DeleteThread(ctx context.Context, actor Actor, threadID int64) error
}

type Courses interface {
	Courses(ctx context.Context) ([]model.Course, error)
	StudentCourses(ctx context.Context, studentID int64) ([]model.Course, error)
	Enroll(ctx context.Context, studentID, courseID int64) error
	Drop(ctx context.Context, studentID, courseID int64) error
	CreateCourse(ctx context.Context, actor Actor, c model.Course) (*model.Course, error)
	SetGrade(ctx context.Context, actor Actor, courseID, studentID int64, score int) error
	Grades(ctx context.Context, studentID int64) ([]model.Grade, error)
}

// Set bundles one implementation of every domain.
type Set struct {
	Accounts Accounts
	Library  Library
	Store    Store
	Forum    Forum
	Courses  Courses
}

// NewSet builds the SQL-backed services over one provider factory.
func NewSet(db datastore.DataProviderFactory) Set {
	return Set{
		Accounts: NewAccountService(db),
		Library:  NewLibraryService(db),
		Store:    NewStoreService(db),
		Forum:    NewForumService(db),
		Courses:  NewCourseService(db),
	}
}

// withTx runs fn inside one transaction. The deferred rollback is a no-op
// after a successful commit.
func withTx(ctx context.Context, db datastore.DataProviderFactory, fn func(datastore.DataStore) error) error {
	tx, err := db.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("service: commit: %w", err)
	}
	return nil
}

// translate maps datastore sentinels to domain failures; what names the
// affected thing in the client-facing message.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, datastore.ErrNotFound):
		return fail(ErrNotFound, "%s not found", what)
	case errors.Is(err, datastore.ErrDuplicate):
		return fail(ErrConflict, "%s already exists", what)
	case errors.Is(err, datastore.ErrExhausted):
		return fail(ErrInvalid, "%s unavailable", what)
	default:
		return err
	}
}

func invalid(err error) error {
	return &Error{Kind: ErrInvalid, Msg: err.Error()}
}
