package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxProductNameLength = 64

var ErrProductName = errors.New("product name must be 1-64 characters")
var ErrProductPrice = errors.New("product price must be positive")
var ErrProductStock = errors.New("product stock must not be negative")

// Product is an item sold by the campus store.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // cents
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields an administrator supplies.
func (p *Product) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(p.Name)); n == 0 || n > MaxProductNameLength {
		return ErrProductName
	}
	if p.Price <= 0 {
		return ErrProductPrice
	}
	if p.Stock < 0 {
		return ErrProductStock
	}
	return nil
}

// CartItem is one line of a user's shopping cart.
type CartItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Order is a checked-out cart.
type Order struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Lines     []OrderLine `json:"lines"`
	Total     int64       `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

// OrderLine is a product snapshot inside an order.
type OrderLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CartTotal sums price times quantity over the cart.
func CartTotal(items []CartItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}
