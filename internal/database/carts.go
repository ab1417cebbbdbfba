package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kisan-choice-api/internal/models"
)

// EnsureCart finds or creates the consumer's cart. newID is used only when a cart is created.
func (r runner) EnsureCart(ctx context.Context, consumerID, newID string, now time.Time) (models.Cart, error) {
	_, err := r.exec(ctx,
		`INSERT INTO carts (id, consumer_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (consumer_id) DO NOTHING`,
		newID, consumerID, formatTime(now),
	)
	if err != nil {
		return models.Cart{}, fmt.Errorf("failed to create cart: %w", err)
	}

	cart, err := r.GetCartByConsumer(ctx, consumerID)
	if err != nil {
		return models.Cart{}, err
	}
	if cart == nil {
		return models.Cart{}, fmt.Errorf("cart for consumer %s missing after insert", consumerID)
	}
	return *cart, nil
}

// GetCartByConsumer returns the consumer's cart, or nil if none exists yet.
func (r runner) GetCartByConsumer(ctx context.Context, consumerID string) (*models.Cart, error) {
	var c models.Cart
	err := r.queryRow(ctx, `SELECT id, consumer_id FROM carts WHERE consumer_id = ?`, consumerID).Scan(&c.ID, &c.ConsumerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &c, nil
}

// InsertCartItem adds a line to a cart.
func (r runner) InsertCartItem(ctx context.Context, item models.CartItem) error {
	var negotiated decimal.NullDecimal
	if item.NegotiatedPricePerUnit != nil {
		negotiated = decimal.NewNullDecimal(*item.NegotiatedPricePerUnit)
	}
	var acceptedOfferID sql.NullString
	if item.AcceptedOfferID != nil {
		acceptedOfferID = nullString(*item.AcceptedOfferID)
	}

	_, err := r.exec(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, price_per_unit, is_negotiated,
			negotiated_price_per_unit, quantity_fixed, accepted_offer_id, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.PricePerUnit, boolInt(item.IsNegotiated),
		negotiated, boolInt(item.QuantityFixed), acceptedOfferID, formatTime(item.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

const cartLineSelect = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price_per_unit, ci.is_negotiated,
		ci.negotiated_price_per_unit, ci.quantity_fixed, ci.accepted_offer_id, ci.added_at,
		p.name, p.seller_id, p.price, p.stock_quantity, p.min_qty, p.max_qty
	FROM cart_items ci
	JOIN carts c ON ci.cart_id = c.id
	JOIN products p ON ci.product_id = p.id`

func scanCartLine(row rowScanner) (models.CartLine, error) {
	var l models.CartLine
	var negotiated decimal.NullDecimal
	var acceptedOfferID sql.NullString
	var addedAt string

	err := row.Scan(
		&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.PricePerUnit, &l.IsNegotiated,
		&negotiated, &l.QuantityFixed, &acceptedOfferID, &addedAt,
		&l.ProductName, &l.SellerID, &l.CatalogPrice, &l.StockQuantity, &l.MinQty, &l.MaxQty,
	)
	if err != nil {
		return models.CartLine{}, err
	}

	if negotiated.Valid {
		price := negotiated.Decimal
		l.NegotiatedPricePerUnit = &price
	}
	if acceptedOfferID.Valid {
		id := acceptedOfferID.String
		l.AcceptedOfferID = &id
	}
	if l.AddedAt, err = parseTime(addedAt); err != nil {
		return models.CartLine{}, err
	}
	return l, nil
}

// CartLines returns the lines of the consumer's cart joined with live product data.
func (r runner) CartLines(ctx context.Context, consumerID string) ([]models.CartLine, error) {
	rows, err := r.query(ctx, cartLineSelect+` WHERE c.consumer_id = ? ORDER BY ci.added_at, ci.id`, consumerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		l, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return lines, nil
}

// GetCartLine returns one line, only if it belongs to consumerID's cart.
func (r runner) GetCartLine(ctx context.Context, itemID, consumerID string) (models.CartLine, error) {
	l, err := scanCartLine(r.queryRow(ctx, cartLineSelect+` WHERE ci.id = ? AND c.consumer_id = ?`, itemID, consumerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CartLine{}, ErrNotFound
	}
	if err != nil {
		return models.CartLine{}, fmt.Errorf("failed to get cart item: %w", err)
	}
	return l, nil
}

// FindStandardLine returns the non-negotiated line for a product in a cart, or nil.
func (r runner) FindStandardLine(ctx context.Context, cartID, productID string) (*models.CartLine, error) {
	l, err := scanCartLine(r.queryRow(ctx,
		cartLineSelect+` WHERE ci.cart_id = ? AND ci.product_id = ? AND ci.is_negotiated = 0`, cartID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}
	return &l, nil
}

// UpdateCartItemQuantity changes the quantity of a line that is not quantity-fixed.
// It returns false if no such editable line exists.
func (r runner) UpdateCartItemQuantity(ctx context.Context, itemID string, qty int) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE cart_items SET quantity = ? WHERE id = ? AND quantity_fixed = 0`, qty, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to update cart item: %w", err)
	}
	return affectedOne(res)
}

// DeleteCartItem removes one line from consumerID's cart.
func (r runner) DeleteCartItem(ctx context.Context, itemID, consumerID string) (bool, error) {
	res, err := r.exec(ctx,
		`DELETE FROM cart_items WHERE id = ? AND cart_id IN (SELECT id FROM carts WHERE consumer_id = ?)`,
		itemID, consumerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart item: %w", err)
	}
	return affectedOne(res)
}

// DeleteCartItems removes the given lines and returns how many were deleted.
func (r runner) DeleteCartItems(ctx context.Context, itemIDs []string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}
	res, err := r.exec(ctx, `DELETE FROM cart_items WHERE id IN (`+placeholders(len(itemIDs))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// ClearCart removes every line from the consumer's cart.
func (r runner) ClearCart(ctx context.Context, consumerID string) (int, error) {
	res, err := r.exec(ctx,
		`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE consumer_id = ?)`, consumerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
