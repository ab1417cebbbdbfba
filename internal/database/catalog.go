package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kisan-choice-api/internal/models"
)

// CreateUser inserts a user row. Account management lives outside this service;
// this is used for seeding and tests.
func (r runner) CreateUser(ctx context.Context, u models.User, now time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO users (id, name, email, role, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, string(u.Role), boolInt(u.Active), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (r runner) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	var role string
	err := r.queryRow(ctx,
		`SELECT id, name, email, role, active FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

// CreateProduct inserts a catalog listing.
func (r runner) CreateProduct(ctx context.Context, p models.Product, now time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO products (id, seller_id, name, price, stock_quantity, min_qty, max_qty, negotiate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SellerID, p.Name, p.Price, p.StockQuantity, p.MinQty, p.MaxQty, boolInt(p.Negotiate), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// GetProduct returns a product by id.
func (r runner) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	err := r.queryRow(ctx,
		`SELECT id, seller_id, name, price, stock_quantity, min_qty, max_qty, negotiate
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.StockQuantity, &p.MinQty, &p.MaxQty, &p.Negotiate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, ErrNotFound
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// DecrementStock subtracts qty from the product's stock only while enough remains.
// It returns false when the guard matched no row.
func (r runner) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE products SET stock_quantity = stock_quantity - ? WHERE id = ? AND stock_quantity >= ?`,
		qty, productID, qty,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for product %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// InsertStockAnomaly records an oversold order line for operators.
func (r runner) InsertStockAnomaly(ctx context.Context, a models.StockAnomaly) error {
	_, err := r.exec(ctx,
		`INSERT INTO stock_anomalies (id, order_id, product_id, quantity, detected_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, a.ProductID, a.Quantity, formatTime(a.DetectedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock anomaly: %w", err)
	}
	return nil
}

// ListStockAnomalies returns recorded anomalies, newest first.
func (r runner) ListStockAnomalies(ctx context.Context) ([]models.StockAnomaly, error) {
	rows, err := r.query(ctx,
		`SELECT id, order_id, product_id, quantity, detected_at FROM stock_anomalies ORDER BY detected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.StockAnomaly
	for rows.Next() {
		var a models.StockAnomaly
		var detectedAt string
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ProductID, &a.Quantity, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock anomaly: %w", err)
		}
		if a.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock anomalies: %w", err)
	}
	return out, nil
}
