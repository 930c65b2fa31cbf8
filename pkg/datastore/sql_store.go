package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

const productColumns = "id, name, price, stock, created_at"

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parsed
	return p, nil
}

func (s *baseProvider) CreateProduct(ctx context.Context, product *model.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	res, err := s.ExecContext(ctx, "INSERT INTO products (name, price, stock) VALUES (?, ?, ?)",
		product.Name, product.Price, product.Stock)
	if err != nil {
		return fmt.Errorf("datastore: create product: %w", err)
	}
	product.ID, _ = res.LastInsertId()
	product.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// GetProduct retrieves a product by ID. Returns (nil, nil) if not found.
func (s *baseProvider) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(s.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get product: %w", err)
	}
	return p, nil
}

func (s *baseProvider) ListProducts(ctx context.Context, offset, limit int) ([]model.Product, error) {
	rows, err := s.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id LIMIT ? OFFSET ?", clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("datastore: list products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *baseProvider) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("datastore: delete product: %w", err)
	}
	return requireAffected(res, "delete product")
}

// AddCartItem adds quantity to the cart line, creating it if needed.
func (s *baseProvider) AddCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	_, err := s.ExecContext(ctx, `INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("datastore: add cart item: %w", err)
	}
	return nil
}

func (s *baseProvider) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ? AND product_id = ?", userID, productID)
	if err != nil {
		return fmt.Errorf("datastore: remove cart item: %w", err)
	}
	return requireAffected(res, "remove cart item")
}

func (s *baseProvider) ClearCart(ctx context.Context, userID int64) error {
	if _, err := s.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("datastore: clear cart: %w", err)
	}
	return nil
}

// ListCart returns the cart lines with current product name and price.
func (s *baseProvider) ListCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	rows, err := s.QueryContext(ctx, `SELECT c.product_id, p.name, p.price, c.quantity
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ? ORDER BY c.product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("datastore: scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DecrementStock removes quantity units. ErrExhausted if not enough stock.
func (s *baseProvider) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.ExecContext(ctx, "UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?", quantity, productID, quantity)
	if err != nil {
		return fmt.Errorf("datastore: decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p, err := s.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("datastore: decrement stock: %w", ErrNotFound)
		}
		return fmt.Errorf("datastore: decrement stock of %q: %w", p.Name, ErrExhausted)
	}
	return nil
}

// CreateOrder inserts the order and its lines, filling in ID and CreatedAt.
func (s *baseProvider) CreateOrder(ctx context.Context, order *model.Order) error {
	res, err := s.ExecContext(ctx, "INSERT INTO orders (user_id, total) VALUES (?, ?)", order.UserID, order.Total)
	if err != nil {
		return fmt.Errorf("datastore: create order: %w", err)
	}
	order.ID, _ = res.LastInsertId()
	order.CreatedAt = time.Now().UTC().Truncate(time.Second)
	for _, l := range order.Lines {
		if _, err := s.ExecContext(ctx, "INSERT INTO order_lines (order_id, product_id, name, price, quantity) VALUES (?, ?, ?, ?, ?)",
			order.ID, l.ProductID, l.Name, l.Price, l.Quantity); err != nil {
			return fmt.Errorf("datastore: create order line: %w", err)
		}
	}
	return nil
}

// ListOrders returns the user's orders, newest first, with their lines.
func (s *baseProvider) ListOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := s.QueryContext(ctx, "SELECT id, user_id, total, created_at FROM orders WHERE user_id = ? ORDER BY id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list orders: %w", err)
	}
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var createdAt string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: scan order: %w", err)
		}
		if o.CreatedAt, err = parseDBTime(createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("datastore: list orders: %w", err)
	}
	// Release the cursor before issuing line queries; a transaction holds one connection.
	_ = rows.Close()

	for i := range orders {
		lines, err := s.listOrderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *baseProvider) listOrderLines(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	rows, err := s.QueryContext(ctx, "SELECT product_id, name, price, quantity FROM order_lines WHERE order_id = ? ORDER BY rowid", orderID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list order lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Price, &l.Quantity); err != nil {
			return nil, fmt.Errorf("datastore: scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
