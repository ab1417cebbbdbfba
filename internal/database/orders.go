package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kisan-choice-api/internal/models"
)

// InsertOrder creates an order together with its item snapshots.
func (r runner) InsertOrder(ctx context.Context, o models.Order) error {
	_, err := r.exec(ctx,
		`INSERT INTO orders (id, consumer_id, total_amount, payment_status, order_status, delivery_address,
			payment_reference, created_at, updated_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ConsumerID, o.TotalAmount, o.PaymentStatus, o.OrderStatus, o.DeliveryAddress,
		nullString(o.PaymentReference), formatTime(o.CreatedAt), formatTime(o.UpdatedAt), formatNullTime(o.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err := r.exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price_per_unit_paid, total_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, o.ID, item.ProductID, item.Quantity, item.PricePerUnitPaid, item.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item for product %s: %w", item.ProductID, err)
		}
	}

	return nil
}

const orderColumns = `id, consumer_id, total_amount, payment_status, order_status, delivery_address,
	payment_reference, created_at, updated_at, paid_at`

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	var reference, paidAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&o.ID, &o.ConsumerID, &o.TotalAmount, &o.PaymentStatus, &o.OrderStatus, &o.DeliveryAddress,
		&reference, &createdAt, &updatedAt, &paidAt)
	if err != nil {
		return models.Order{}, err
	}

	o.PaymentReference = reference.String
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Order{}, err
	}
	if o.PaidAt, err = parseNullTime(paidAt); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

// GetOrder returns an order and its items.
func (r runner) GetOrder(ctx context.Context, id string) (models.Order, error) {
	o, err := scanOrder(r.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	if o.Items, err = r.OrderItems(ctx, id); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

// OrderItems returns the item snapshots of an order.
func (r runner) OrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := r.query(ctx,
		`SELECT id, order_id, product_id, quantity, price_per_unit_paid, total_price
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PricePerUnitPaid, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}
	return items, nil
}

// ListOrdersByConsumer returns a consumer's orders, newest first, without items.
func (r runner) ListOrdersByConsumer(ctx context.Context, consumerID string) ([]models.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE consumer_id = ? ORDER BY created_at DESC`, consumerID)
}

// ShippedOrdersBefore returns shipped orders last updated at or before cutoff.
func (r runner) ShippedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_status = 'shipped' AND updated_at <= ? ORDER BY updated_at`,
		formatTime(cutoff))
}

func (r runner) listOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// CompletePayment marks an unpaid order as paid and moves it to processing,
// whatever its order status. It returns false when the payment was already
// completed, which makes redelivery a no-op.
func (r runner) CompletePayment(ctx context.Context, orderID, reference string, now time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE orders SET payment_status = 'completed', order_status = 'processing',
			payment_reference = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'pending'`,
		nullString(reference), formatTime(now), formatTime(now), orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete payment: %w", err)
	}
	return affectedOne(res)
}

// TransitionOrderStatus moves an order from one of the allowed statuses to next.
// It returns false if the order was not in an allowed status at write time.
func (r runner) TransitionOrderStatus(ctx context.Context, orderID string, from []string, next string, now time.Time) (bool, error) {
	args := []interface{}{next, formatTime(now), orderID}
	for _, s := range from {
		args = append(args, s)
	}
	res, err := r.exec(ctx,
		`UPDATE orders SET order_status = ?, updated_at = ?
		WHERE id = ? AND order_status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return affectedOne(res)
}

// CancelPendingOrder cancels an unpaid pending order owned by consumerID.
func (r runner) CancelPendingOrder(ctx context.Context, orderID, consumerID string, now time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE orders SET order_status = 'cancelled', updated_at = ?
		WHERE id = ? AND consumer_id = ? AND order_status = 'pending' AND payment_status = 'pending'`,
		formatTime(now), orderID, consumerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	return affectedOne(res)
}

// MarkDelivered flips a shipped order to delivered if it is still shipped and
// was last updated at or before cutoff.
func (r runner) MarkDelivered(ctx context.Context, orderID string, cutoff, now time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE orders SET order_status = 'delivered', updated_at = ?
		WHERE id = ? AND order_status = 'shipped' AND updated_at <= ?`,
		formatTime(now), orderID, formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order delivered: %w", err)
	}
	return affectedOne(res)
}

// FarmerHasProductInOrder reports whether any line of the order is one of farmerID's products.
func (r runner) FarmerHasProductInOrder(ctx context.Context, orderID, farmerID string) (bool, error) {
	var one int
	err := r.queryRow(ctx,
		`SELECT 1 FROM order_items oi JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = ? AND p.seller_id = ? LIMIT 1`, orderID, farmerID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check order ownership: %w", err)
	}
	return true, nil
}
