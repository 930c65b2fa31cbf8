package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

var (
	// ErrNotFound is returned by updates and deletes that matched no row.
	// Single-row getters return (nil, nil) instead.
	ErrNotFound = errors.New("datastore: not found")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("datastore: duplicate")
	// ErrExhausted is returned when a counted resource (copies, stock,
	// seats, balance) would drop below zero.
	ErrExhausted = errors.New("datastore: exhausted")
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for all campus entities.
type DataStore interface {
	UserReadProvider
	UserWriteProvider

	BookReadProvider
	BookWriteProvider

	ProductReadProvider
	ProductWriteProvider

	ThreadReadProvider
	ThreadWriteProvider

	CourseReadProvider
	CourseWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type UserReadProvider interface {
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]model.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type UserWriteProvider interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserDisplayName(ctx context.Context, id int64, name string) error
	UpdateUserPassword(ctx context.Context, id int64, hash, salt []byte) error
	DeleteUser(ctx context.Context, id int64) error
	// AdjustBalance adds delta (may be negative) and returns the new balance.
	AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error)
}

type BookReadProvider interface {
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	SearchBooks(ctx context.Context, query string, limit int) ([]model.Book, error)
	ListLoans(ctx context.Context, userID int64) ([]model.Loan, error)
}

type BookWriteProvider interface {
	CreateBook(ctx context.Context, book *model.Book) error
	DeleteBook(ctx context.Context, id int64) error
	CreateLoan(ctx context.Context, bookID, userID int64, due time.Time) (*model.Loan, error)
	ReturnLoan(ctx context.Context, bookID, userID int64) (*model.Loan, error)
}

type ProductReadProvider interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]model.Product, error)
	ListCart(ctx context.Context, userID int64) ([]model.CartItem, error)
	ListOrders(ctx context.Context, userID int64) ([]model.Order, error)
}

type ProductWriteProvider interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	AddCartItem(ctx context.Context, userID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	CreateOrder(ctx context.Context, order *model.Order) error
}

type ThreadReadProvider interface {
	GetThread(ctx context.Context, id int64) (*model.Thread, error)
	ListPosts(ctx context.Context, threadID int64, offset, limit int) ([]model.Post, error)
	ListThreads(ctx context.Context, offset, limit int) ([]model.Thread, error)
}

type ThreadWriteProvider interface {
	CreateThread(ctx context.Context, thread *model.Thread) error
	CreatePost(ctx context.Context, post *model.Post) error
	DeleteThread(ctx context.Context, id int64) error
}

type CourseReadProvider interface {
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListStudentCourses(ctx context.Context, studentID int64) ([]model.Course, error)
	ListGrades(ctx context.Context, studentID int64) ([]model.Grade, error)
}

type CourseWriteProvider interface {
	CreateCourse(ctx context.Context, course *model.Course) error
	Enroll(ctx context.Context, courseID, studentID int64) error
	Drop(ctx context.Context, courseID, studentID int64) error
	SetGrade(ctx context.Context, courseID, studentID int64, score int) error
}
