package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

// MaxRecharge caps a single balance top-up, in cents.
const MaxRecharge = 100_000_00

type StoreService struct {
	db datastore.DataProviderFactory
}

func NewStoreService(db datastore.DataProviderFactory) *StoreService {
	return &StoreService{db: db}
}

var _ Store = (*StoreService)(nil)

func (s *StoreService) Products(ctx context.Context, offset, limit int) ([]model.Product, error) {
	return s.db.NonTx().ListProducts(ctx, offset, limit)
}

func (s *StoreService) Product(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.db.NonTx().GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fail(ErrNotFound, "product %d not found", id)
	}
	return p, nil
}

func (s *StoreService) AddToCart(ctx context.Context, userID, productID int64, quantity int) ([]model.CartItem, error) {
	if quantity < 1 {
		return nil, fail(ErrInvalid, "quantity must be positive")
	}
	var cart []model.CartItem
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return fail(ErrNotFound, "product %d not found", productID)
		}
		current, err := tx.ListCart(ctx, userID)
		if err != nil {
			return err
		}
		want := quantity
		for _, it := range current {
			if it.ProductID == productID {
				want += it.Quantity
			}
		}
		if want > p.Stock {
			return fail(ErrInvalid, "insufficient stock for %s: %d left", p.Name, p.Stock)
		}
		if err := tx.AddCartItem(ctx, userID, productID, quantity); err != nil {
			return err
		}
		cart, err = tx.ListCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *StoreService) RemoveFromCart(ctx context.Context, userID, productID int64) ([]model.CartItem, error) {
	var cart []model.CartItem
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		if err := tx.RemoveCartItem(ctx, userID, productID); err != nil {
			return err
		}
		var err error
		cart, err = tx.ListCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, translate(err, fmt.Sprintf("product %d in cart", productID))
	}
	return cart, nil
}

func (s *StoreService) Cart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return s.db.NonTx().ListCart(ctx, userID)
}

// Checkout turns the cart into an order, taking stock and charging the
// balance in the same transaction.
func (s *StoreService) Checkout(ctx context.Context, userID int64) (*model.Order, error) {
	var order *model.Order
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		cart, err := tx.ListCart(ctx, userID)
		if err != nil {
			return err
		}
		if len(cart) == 0 {
			return fail(ErrInvalid, "cart is empty")
		}

		o := &model.Order{UserID: userID, Total: model.CartTotal(cart)}
		for _, it := range cart {
			if err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				if errors.Is(err, datastore.ErrExhausted) {
					return fail(ErrInvalid, "insufficient stock for %s", it.Name)
				}
				return translate(err, fmt.Sprintf("product %d", it.ProductID))
			}
			o.Lines = append(o.Lines, model.OrderLine{ProductID: it.ProductID, Name: it.Name, Price: it.Price, Quantity: it.Quantity})
		}
		if _, err := tx.AdjustBalance(ctx, userID, -o.Total); err != nil {
			if errors.Is(err, datastore.ErrExhausted) {
				return fail(ErrInvalid, "insufficient balance")
			}
			return translate(err, "user")
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *StoreService) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.db.NonTx().ListOrders(ctx, userID)
}

func (s *StoreService) Balance(ctx context.Context, userID int64) (int64, error) {
	u, err := s.db.NonTx().GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, fail(ErrNotFound, "user %d not found", userID)
	}
	return u.Balance, nil
}

func (s *StoreService) Recharge(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 || amount > MaxRecharge {
		return 0, fail(ErrInvalid, "recharge amount must be between 1 and %d", int64(MaxRecharge))
	}
	var balance int64
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		var err error
		balance, err = tx.AdjustBalance(ctx, userID, amount)
		return err
	})
	if err != nil {
		return 0, translate(err, "user")
	}
	return balance, nil
}

func (s *StoreService) AddProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, invalid(err)
	}
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.CreateProduct(ctx, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StoreService) DeleteProduct(ctx context.Context, id int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		return tx.DeleteProduct(ctx, id)
	})
	return translate(err, fmt.Sprintf("product %d", id))
}
