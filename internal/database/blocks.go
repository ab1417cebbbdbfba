package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kisan-choice-api/internal/models"
)

// ActiveBlock returns the block a farmer holds on a consumer if blocked_until > now, or nil.
func (r runner) ActiveBlock(ctx context.Context, consumerID, farmerID string, now time.Time) (*models.BlockedAccount, error) {
	var b models.BlockedAccount
	var blockedOn, blockedUntil string
	err := r.queryRow(ctx,
		`SELECT id, user_id, farmer_id, reason, blocked_on, blocked_until
		FROM blocked_accounts WHERE user_id = ? AND farmer_id = ? AND blocked_until > ?`,
		consumerID, farmerID, formatTime(now),
	).Scan(&b.ID, &b.ConsumerID, &b.FarmerID, &b.Reason, &blockedOn, &blockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	if b.BlockedOn, err = parseTime(blockedOn); err != nil {
		return nil, err
	}
	if b.BlockedUntil, err = parseTime(blockedUntil); err != nil {
		return nil, err
	}
	return &b, nil
}

// IsBlocked reports whether an active block exists for the pair.
func (r runner) IsBlocked(ctx context.Context, consumerID, farmerID string, now time.Time) (bool, error) {
	b, err := r.ActiveBlock(ctx, consumerID, farmerID, now)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// DeleteExpiredBlock removes a lapsed block so the pair's unique slot can be reused.
func (r runner) DeleteExpiredBlock(ctx context.Context, consumerID, farmerID string, now time.Time) error {
	_, err := r.exec(ctx,
		`DELETE FROM blocked_accounts WHERE user_id = ? AND farmer_id = ? AND blocked_until <= ?`,
		consumerID, farmerID, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to delete expired block: %w", err)
	}
	return nil
}

// InsertBlock adds a block row. A concurrent insert for the same pair fails
// with a unique violation.
func (r runner) InsertBlock(ctx context.Context, b models.BlockedAccount) error {
	_, err := r.exec(ctx,
		`INSERT INTO blocked_accounts (id, user_id, farmer_id, reason, blocked_on, blocked_until)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.ConsumerID, b.FarmerID, b.Reason, formatTime(b.BlockedOn), formatTime(b.BlockedUntil),
	)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

// InsertBlockIfAbsent adds a block row unless the pair already has one. It
// does not abort an enclosing postgres transaction on conflict.
func (r runner) InsertBlockIfAbsent(ctx context.Context, b models.BlockedAccount) (bool, error) {
	res, err := r.exec(ctx,
		`INSERT INTO blocked_accounts (id, user_id, farmer_id, reason, blocked_on, blocked_until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, farmer_id) DO NOTHING`,
		b.ID, b.ConsumerID, b.FarmerID, b.Reason, formatTime(b.BlockedOn), formatTime(b.BlockedUntil),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert block: %w", err)
	}
	return affectedOne(res)
}

// DeleteBlock removes the farmer's block on a consumer. It returns false if none existed.
func (r runner) DeleteBlock(ctx context.Context, consumerID, farmerID string) (bool, error) {
	res, err := r.exec(ctx, `DELETE FROM blocked_accounts WHERE user_id = ? AND farmer_id = ?`, consumerID, farmerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete block: %w", err)
	}
	return affectedOne(res)
}

// ListActiveBlocks returns the farmer's active blocks, newest first.
func (r runner) ListActiveBlocks(ctx context.Context, farmerID string, now time.Time) ([]models.BlockedAccount, error) {
	rows, err := r.query(ctx,
		`SELECT b.id, b.user_id, b.farmer_id, b.reason, b.blocked_on, b.blocked_until, u.name, u.email
		FROM blocked_accounts b
		JOIN users u ON b.user_id = u.id
		WHERE b.farmer_id = ? AND b.blocked_until > ?
		ORDER BY b.blocked_on DESC`, farmerID, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	blocks := []models.BlockedAccount{}
	for rows.Next() {
		var b models.BlockedAccount
		var blockedOn, blockedUntil string
		if err := rows.Scan(&b.ID, &b.ConsumerID, &b.FarmerID, &b.Reason, &blockedOn, &blockedUntil,
			&b.ConsumerName, &b.ConsumerMail); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if b.BlockedOn, err = parseTime(blockedOn); err != nil {
			return nil, err
		}
		if b.BlockedUntil, err = parseTime(blockedUntil); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}
	return blocks, nil
}
