package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kisan-choice-api/internal/models"
)

const offerColumns = `o.id, o.product_id, o.farmer_id, o.consumer_id, o.offer_price_per_unit, o.quantity,
	o.status, o.rejection_count, o.offer_date, o.response_date`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner, extra ...interface{}) (models.Offer, error) {
	var o models.Offer
	var status, offerDate string
	var responseDate sql.NullString

	dest := []interface{}{
		&o.ID, &o.ProductID, &o.FarmerID, &o.ConsumerID, &o.OfferPricePerUnit, &o.Quantity,
		&status, &o.RejectionCount, &offerDate, &responseDate,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.Offer{}, err
	}

	o.Status = models.OfferStatus(status)
	var err error
	if o.OfferDate, err = parseTime(offerDate); err != nil {
		return models.Offer{}, err
	}
	if o.ResponseDate, err = parseNullTime(responseDate); err != nil {
		return models.Offer{}, err
	}
	return o, nil
}

// InsertOffer records a new offer. A second pending offer for the same
// (product, consumer) pair fails with a unique violation.
func (r runner) InsertOffer(ctx context.Context, o models.Offer) error {
	_, err := r.exec(ctx,
		`INSERT INTO offers (id, product_id, farmer_id, consumer_id, offer_price_per_unit, quantity,
			status, rejection_count, offer_date, response_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProductID, o.FarmerID, o.ConsumerID, o.OfferPricePerUnit, o.Quantity,
		string(o.Status), o.RejectionCount, formatTime(o.OfferDate), formatNullTime(o.ResponseDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

// GetOffer returns an offer by id.
func (r runner) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	o, err := scanOffer(r.queryRow(ctx, `SELECT `+offerColumns+` FROM offers o WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, ErrNotFound
	}
	if err != nil {
		return models.Offer{}, fmt.Errorf("failed to get offer: %w", err)
	}
	return o, nil
}

// GetOfferForFarmer returns the offer only if it was addressed to farmerID.
func (r runner) GetOfferForFarmer(ctx context.Context, offerID, farmerID string) (models.Offer, error) {
	o, err := scanOffer(r.queryRow(ctx,
		`SELECT `+offerColumns+` FROM offers o WHERE o.id = ? AND o.farmer_id = ?`, offerID, farmerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, ErrNotFound
	}
	if err != nil {
		return models.Offer{}, fmt.Errorf("failed to get offer: %w", err)
	}
	return o, nil
}

// LatestOfferForPair returns the most recent offer a consumer made on a product, or nil.
func (r runner) LatestOfferForPair(ctx context.Context, productID, consumerID string) (*models.Offer, error) {
	o, err := scanOffer(r.queryRow(ctx,
		`SELECT `+offerColumns+` FROM offers o
		WHERE o.product_id = ? AND o.consumer_id = ?
		ORDER BY o.offer_date DESC LIMIT 1`, productID, consumerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest offer: %w", err)
	}
	return &o, nil
}

// MarkOfferAccepted moves a pending offer to accepted. It returns false if the
// offer was not pending for this farmer at write time.
func (r runner) MarkOfferAccepted(ctx context.Context, offerID, farmerID string, now time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE offers SET status = 'accepted', response_date = ?
		WHERE id = ? AND farmer_id = ? AND status = 'pending'`,
		formatTime(now), offerID, farmerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to accept offer: %w", err)
	}
	return affectedOne(res)
}

// MarkOfferRejected moves a pending offer to rejected and bumps its rejection count.
func (r runner) MarkOfferRejected(ctx context.Context, offerID, farmerID string, now time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE offers SET status = 'rejected', response_date = ?, rejection_count = rejection_count + 1
		WHERE id = ? AND farmer_id = ? AND status = 'pending'`,
		formatTime(now), offerID, farmerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reject offer: %w", err)
	}
	return affectedOne(res)
}

// CountRejections counts rejected offers from a farmer to a consumer across all products.
func (r runner) CountRejections(ctx context.Context, farmerID, consumerID string) (int, error) {
	var n int
	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM offers WHERE farmer_id = ? AND consumer_id = ? AND status = 'rejected'`,
		farmerID, consumerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rejections: %w", err)
	}
	return n, nil
}

// CountPendingOffers counts pending offers for a pair; used by invariant checks.
func (r runner) CountPendingOffers(ctx context.Context, productID, consumerID string) (int, error) {
	var n int
	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM offers WHERE product_id = ? AND consumer_id = ? AND status = 'pending'`,
		productID, consumerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending offers: %w", err)
	}
	return n, nil
}

// ListOffersForFarmer returns offers received by a farmer, newest first.
func (r runner) ListOffersForFarmer(ctx context.Context, farmerID string) ([]models.OfferView, error) {
	return r.listOffers(ctx,
		`SELECT `+offerColumns+`, p.name, u.id, u.name
		FROM offers o
		JOIN products p ON o.product_id = p.id
		JOIN users u ON o.consumer_id = u.id
		WHERE o.farmer_id = ?
		ORDER BY o.offer_date DESC`, farmerID)
}

// ListOffersForConsumer returns offers sent by a consumer, newest first.
func (r runner) ListOffersForConsumer(ctx context.Context, consumerID string) ([]models.OfferView, error) {
	return r.listOffers(ctx,
		`SELECT `+offerColumns+`, p.name, u.id, u.name
		FROM offers o
		JOIN products p ON o.product_id = p.id
		JOIN users u ON o.farmer_id = u.id
		WHERE o.consumer_id = ?
		ORDER BY o.offer_date DESC`, consumerID)
}

func (r runner) listOffers(ctx context.Context, query string, args ...interface{}) ([]models.OfferView, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	offers := []models.OfferView{}
	for rows.Next() {
		var v models.OfferView
		o, err := scanOffer(rows, &v.ProductName, &v.CounterpartyID, &v.CounterpartyName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		v.Offer = o
		offers = append(offers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}
	return offers, nil
}

// InsertAcceptedOffer creates the price lock for an accepted offer.
func (r runner) InsertAcceptedOffer(ctx context.Context, a models.AcceptedOffer, now time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO accepted_offers (id, offer_id, accepted_price, fixed_qty, expiry_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.OfferID, a.AcceptedPrice, a.FixedQty, formatTime(a.ExpiryTime), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert accepted offer: %w", err)
	}
	return nil
}

// GetAcceptedOfferByOffer returns the price lock created for offerID.
func (r runner) GetAcceptedOfferByOffer(ctx context.Context, offerID string) (models.AcceptedOffer, error) {
	var a models.AcceptedOffer
	var expiry string
	err := r.queryRow(ctx,
		`SELECT id, offer_id, accepted_price, fixed_qty, expiry_time FROM accepted_offers WHERE offer_id = ?`,
		offerID,
	).Scan(&a.ID, &a.OfferID, &a.AcceptedPrice, &a.FixedQty, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AcceptedOffer{}, ErrNotFound
	}
	if err != nil {
		return models.AcceptedOffer{}, fmt.Errorf("failed to get accepted offer: %w", err)
	}
	if a.ExpiryTime, err = parseTime(expiry); err != nil {
		return models.AcceptedOffer{}, err
	}
	return a, nil
}

// ExpiredLine is a negotiated cart line whose price lock has run out.
type ExpiredLine struct {
	CartItemID      string
	CartID          string
	AcceptedOfferID string
	OfferID         string
	ConsumerID      string
	ProductID       string
}

// ExpiredNegotiatedLines selects cart lines joined to a price lock with expiry_time < now.
func (r runner) ExpiredNegotiatedLines(ctx context.Context, now time.Time) ([]ExpiredLine, error) {
	rows, err := r.query(ctx,
		`SELECT ci.id, ci.cart_id, ao.id, ao.offer_id, o.consumer_id, o.product_id
		FROM accepted_offers ao
		JOIN cart_items ci ON ci.accepted_offer_id = ao.id
		JOIN offers o ON o.id = ao.offer_id
		WHERE ao.expiry_time < ?
		ORDER BY ao.expiry_time`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired cart lines: %w", err)
	}
	defer rows.Close()

	var lines []ExpiredLine
	for rows.Next() {
		var l ExpiredLine
		if err := rows.Scan(&l.CartItemID, &l.CartID, &l.AcceptedOfferID, &l.OfferID, &l.ConsumerID, &l.ProductID); err != nil {
			return nil, fmt.Errorf("failed to scan expired cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired cart lines: %w", err)
	}
	return lines, nil
}

// LapseOffer flips an accepted offer to lapsed. It returns false if the offer
// was no longer accepted.
func (r runner) LapseOffer(ctx context.Context, offerID string) (bool, error) {
	res, err := r.exec(ctx, `UPDATE offers SET status = 'lapsed' WHERE id = ? AND status = 'accepted'`, offerID)
	if err != nil {
		return false, fmt.Errorf("failed to lapse offer: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
