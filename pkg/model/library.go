package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength = 128
	MaxBookCopies  = 1000
	LoanPeriod     = 30 * 24 * time.Hour
)

var ErrBookTitle = errors.New("book title must be 1-128 characters")
var ErrBookCopies = errors.New("book copies out of range")

// Book is a catalog entry in the library.
type Book struct {
	ID        int64     `json:"id"`
	ISBN      string    `json:"isbn"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Copies    int       `json:"copies"`    // total copies owned
	Available int       `json:"available"` // copies currently on the shelf
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields an administrator supplies when adding a book.
func (b *Book) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(b.Title)); n == 0 || n > MaxTitleLength {
		return ErrBookTitle
	}
	if b.Copies < 1 || b.Copies > MaxBookCopies {
		return ErrBookCopies
	}
	return nil
}

// Loan records one borrowed copy.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	Title      string     `json:"title"`
	UserID     int64      `json:"user_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// Overdue reports whether an open loan is past its due date.
func (l *Loan) Overdue(now time.Time) bool {
	return l.ReturnedAt == nil && now.After(l.DueAt)
}
