package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

type LibraryService struct {
	db  datastore.DataProviderFactory
	now func() time.Time
}

func NewLibraryService(db datastore.DataProviderFactory) *LibraryService {
	return &LibraryService{db: db, now: time.Now}
}

var _ Library = (*LibraryService)(nil)

func (s *LibraryService) Search(ctx context.Context, query string, limit int) ([]model.Book, error) {
	return s.db.NonTx().SearchBooks(ctx, query, limit)
}

func (s *LibraryService) Book(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.db.NonTx().GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fail(ErrNotFound, "book %d not found", id)
	}
	return b, nil
}

// errOverdueLoans aborts a borrow transaction.
var errOverdueLoans = errors.New("service: overdue loans")

func (s *LibraryService) Borrow(ctx context.Context, userID, bookID int64) (*model.Loan, error) {
	var loan *model.Loan
	now := s.now()
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		open, err := tx.ListLoans(ctx, userID)
		if err != nil {
			return err
		}
		for i := range open {
			if open[i].Overdue(now) {
				return errOverdueLoans
			}
		}
		loan, err = tx.CreateLoan(ctx, bookID, userID, now.Add(model.LoanPeriod))
		return err
	})
	switch {
	case errors.Is(err, errOverdueLoans):
		return nil, fail(ErrForbidden, "return overdue books before borrowing more")
	case errors.Is(err, datastore.ErrExhausted):
		return nil, fail(ErrInvalid, "no copies of book %d available", bookID)
	case errors.Is(err, datastore.ErrDuplicate):
		return nil, fail(ErrConflict, "book %d is already on loan to you", bookID)
	case err != nil:
		return nil, translate(err, fmt.Sprintf("book %d", bookID))
	}
	return loan, nil
}

func (s *LibraryService) Return(ctx context.Context, userID, bookID int64) (*model.Loan, error) {
	var loan *model.Loan
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		var err error
		loan, err = tx.ReturnLoan(ctx, bookID, userID)
		return err
	})
	if err != nil {
		return nil, translate(err, fmt.Sprintf("open loan of book %d", bookID))
	}
	return loan, nil
}

func (s *LibraryService) Loans(ctx context.Context, userID int64) ([]model.Loan, error) {
	return s.db.NonTx().ListLoans(ctx, userID)
}

func (s *LibraryService) AddBook(ctx context.Context, book model.Book) (*model.Book, error) {
	if err := book.Validate(); err != nil {
		return nil, invalid(err)
	}
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.CreateBook(ctx, &book)
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (s *LibraryService) DeleteBook(ctx context.Context, id int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.DeleteBook(ctx, id)
	})
	return translate(err, fmt.Sprintf("book %d", id))
}
