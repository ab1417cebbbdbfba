package service

import (
	"context"
	"time"

	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/tracing"
)

// ReapExpiredPriceLocks removes negotiated cart lines whose price lock expired
// before now and lapses offers that are still accepted. Price locks stay for audit.
func (s *Service) ReapExpiredPriceLocks(ctx context.Context, now time.Time) (result models.ReapResult, err error) {
	ctx, span := tracing.Start(ctx, "service.ReapExpiredPriceLocks")
	defer func() { tracing.End(span, err) }()

	now = now.UTC()
	result.LapsedOfferIDs = []string{}
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		lines, err := tx.ExpiredNegotiatedLines(ctx, now)
		if err != nil || len(lines) == 0 {
			return err
		}

		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.CartItemID)
		}
		if result.RemovedCartItems, err = tx.DeleteCartItems(ctx, ids); err != nil {
			return err
		}

		for _, l := range lines {
			lapsed, err := tx.LapseOffer(ctx, l.OfferID)
			if err != nil {
				return err
			}
			if !lapsed {
				continue
			}
			result.LapsedOfferIDs = append(result.LapsedOfferIDs, l.OfferID)
			effects = append(effects, events.New(events.EventOfferLapsed, now, events.OfferLapsedData{
				OfferID:         l.OfferID,
				AcceptedOfferID: l.AcceptedOfferID,
				CartItemID:      l.CartItemID,
				ConsumerID:      l.ConsumerID,
				ProductID:       l.ProductID,
			}))
		}
		return nil
	})
	if err != nil {
		return models.ReapResult{}, internal(err, "reap expired price locks")
	}

	if result.RemovedCartItems > 0 {
		s.logger.Info().
			Int("removed_cart_items", result.RemovedCartItems).
			Int("lapsed_offers", len(result.LapsedOfferIDs)).
			Msg("expired price locks reaped")
	}
	s.publish(ctx, effects)
	return result, nil
}

// SweepDeliveries marks orders that have been shipped for longer than after as delivered.
func (s *Service) SweepDeliveries(ctx context.Context, now time.Time, after time.Duration) (delivered int, err error) {
	if !s.flags.IsEnabled(features.DeliverySweep) {
		return 0, nil
	}

	ctx, span := tracing.Start(ctx, "service.SweepDeliveries")
	defer func() { tracing.End(span, err) }()

	now = now.UTC()
	cutoff := now.Add(-after)
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		orders, err := tx.ShippedOrdersBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, o := range orders {
			ok, err := tx.MarkDelivered(ctx, o.ID, cutoff, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			delivered++
			effects = append(effects, events.New(events.EventOrderStatusChanged, now, events.OrderStatusChangedData{
				OrderID:    o.ID,
				ConsumerID: o.ConsumerID,
				From:       models.OrderShipped,
				To:         models.OrderDelivered,
			}))
		}
		return nil
	})
	if err != nil {
		return 0, internal(err, "sweep deliveries")
	}

	if delivered > 0 {
		s.logger.Info().Int("delivered", delivered).Msg("shipped orders marked delivered")
	}
	s.publish(ctx, effects)
	return delivered, nil
}
