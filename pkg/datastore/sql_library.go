package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

const bookColumns = "id, isbn, title, author, copies, available, created_at"

func scanBook(row rowScanner) (*model.Book, error) {
	b := &model.Book{}
	var createdAt string
	if err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Copies, &b.Available, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = parsed
	return b, nil
}

// CreateBook inserts a book with all copies available.
func (s *baseProvider) CreateBook(ctx context.Context, book *model.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	res, err := s.ExecContext(ctx,
		"INSERT INTO books (isbn, title, author, copies, available) VALUES (?, ?, ?, ?, ?)",
		book.ISBN, book.Title, book.Author, book.Copies, book.Copies)
	if err != nil {
		return fmt.Errorf("datastore: create book: %w", err)
	}
	book.ID, _ = res.LastInsertId()
	book.Available = book.Copies
	book.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// GetBook retrieves a book by ID. Returns (nil, nil) if not found.
func (s *baseProvider) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	b, err := scanBook(s.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get book: %w", err)
	}
	return b, nil
}

// SearchBooks matches the query against title, author and ISBN.
// An empty query lists the catalog.
func (s *baseProvider) SearchBooks(ctx context.Context, query string, limit int) ([]model.Book, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE title LIKE ? ESCAPE '\\' OR author LIKE ? ESCAPE '\\' OR isbn LIKE ? ESCAPE '\\' ORDER BY title, id LIMIT ?",
		pattern, pattern, pattern, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("datastore: search books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

func (s *baseProvider) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("datastore: delete book: %w", err)
	}
	return requireAffected(res, "delete book")
}

// CreateLoan takes one copy off the shelf. ErrExhausted when none is left,
// ErrDuplicate when the user already holds a copy.
func (s *baseProvider) CreateLoan(ctx context.Context, bookID, userID int64, due time.Time) (*model.Loan, error) {
	var open int
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM loans WHERE book_id = ? AND user_id = ? AND returned_at IS NULL", bookID, userID).Scan(&open); err != nil {
		return nil, fmt.Errorf("datastore: create loan: %w", err)
	}
	if open > 0 {
		return nil, fmt.Errorf("datastore: create loan: %w", ErrDuplicate)
	}

	res, err := s.ExecContext(ctx, "UPDATE books SET available = available - 1 WHERE id = ? AND available > 0", bookID)
	if err != nil {
		return nil, fmt.Errorf("datastore: create loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		b, err := s.GetBook(ctx, bookID)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, fmt.Errorf("datastore: create loan: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("datastore: create loan: %w", ErrExhausted)
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err = s.ExecContext(ctx, "INSERT INTO loans (book_id, user_id, borrowed_at, due_at) VALUES (?, ?, ?, ?)",
		bookID, userID, formatDBTime(now), formatDBTime(due))
	if err != nil {
		return nil, fmt.Errorf("datastore: create loan: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getLoan(ctx, id)
}

// ReturnLoan closes the user's open loan of the book and puts the copy back.
func (s *baseProvider) ReturnLoan(ctx context.Context, bookID, userID int64) (*model.Loan, error) {
	var loanID int64
	err := s.QueryRowContext(ctx, "SELECT id FROM loans WHERE book_id = ? AND user_id = ? AND returned_at IS NULL ORDER BY id LIMIT 1", bookID, userID).Scan(&loanID)
	if noRows(err) {
		return nil, fmt.Errorf("datastore: return loan: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: return loan: %w", err)
	}
	if _, err := s.ExecContext(ctx, "UPDATE loans SET returned_at = ? WHERE id = ?", formatDBTime(time.Now()), loanID); err != nil {
		return nil, fmt.Errorf("datastore: return loan: %w", err)
	}
	if _, err := s.ExecContext(ctx, "UPDATE books SET available = available + 1 WHERE id = ? AND available < copies", bookID); err != nil {
		return nil, fmt.Errorf("datastore: return loan: %w", err)
	}
	return s.getLoan(ctx, loanID)
}

const loanQuery = `SELECT l.id, l.book_id, b.title, l.user_id, l.borrowed_at, l.due_at, l.returned_at
	FROM loans l JOIN books b ON b.id = l.book_id`

func scanLoan(row rowScanner) (*model.Loan, error) {
	l := &model.Loan{}
	var borrowed, due string
	var returned sql.NullString
	if err := row.Scan(&l.ID, &l.BookID, &l.Title, &l.UserID, &borrowed, &due, &returned); err != nil {
		return nil, err
	}
	var err error
	if l.BorrowedAt, err = parseDBTime(borrowed); err != nil {
		return nil, err
	}
	if l.DueAt, err = parseDBTime(due); err != nil {
		return nil, err
	}
	if returned.Valid {
		t, err := parseDBTime(returned.String)
		if err != nil {
			return nil, err
		}
		l.ReturnedAt = &t
	}
	return l, nil
}

func (s *baseProvider) getLoan(ctx context.Context, id int64) (*model.Loan, error) {
	l, err := scanLoan(s.QueryRowContext(ctx, loanQuery+" WHERE l.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("datastore: get loan: %w", err)
	}
	return l, nil
}

// ListLoans returns the user's loans, open ones first.
func (s *baseProvider) ListLoans(ctx context.Context, userID int64) ([]model.Loan, error) {
	rows, err := s.QueryContext(ctx, loanQuery+" WHERE l.user_id = ? ORDER BY l.returned_at IS NOT NULL, l.due_at", userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list loans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
