package service

import (
	"context"
	"fmt"
	"time"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/tracing"
	"kisan-choice-api/internal/validation"
)

// Decision is a farmer's response to a pending offer.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// RespondToOffer applies a farmer's decision. The accept result is nil for rejections.
func (s *Service) RespondToOffer(ctx context.Context, farmerID, offerID string, decision Decision, reason string) (*models.AcceptOfferResponse, error) {
	switch decision {
	case DecisionAccept:
		resp, err := s.AcceptOffer(ctx, farmerID, offerID)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	case DecisionReject:
		return nil, s.RejectOffer(ctx, farmerID, offerID, reason)
	default:
		return nil, apperror.Validation("Unknown decision %q.", decision)
	}
}

// pendingOfferForFarmer loads an offer addressed to farmerID and requires it to be pending.
func pendingOfferForFarmer(ctx context.Context, tx *database.Tx, farmerID, offerID string) (models.Offer, error) {
	offer, err := tx.GetOfferForFarmer(ctx, offerID, farmerID)
	if notFound(err) {
		return models.Offer{}, apperror.NotFound("Offer not found or you do not have permission to respond to it.")
	}
	if err != nil {
		return models.Offer{}, err
	}
	if offer.Status != models.OfferPending {
		return models.Offer{}, apperror.Conflict("This offer has already been %s.", offer.Status)
	}
	return offer, nil
}

// AcceptOffer accepts a pending offer, creates its price lock and places a
// fixed-quantity line in the consumer's cart, all in one transaction.
func (s *Service) AcceptOffer(ctx context.Context, farmerID, offerID string) (resp models.AcceptOfferResponse, err error) {
	ctx, span := tracing.Start(ctx, "service.AcceptOffer", "farmer.id", farmerID, "offer.id", offerID)
	defer func() { tracing.End(span, err) }()

	if err := invalid(validation.ValidateID(offerID, "offerId")); err != nil {
		return models.AcceptOfferResponse{}, err
	}

	now := s.now()
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		offer, err := pendingOfferForFarmer(ctx, tx, farmerID, offerID)
		if err != nil {
			return err
		}

		ok, err := tx.MarkOfferAccepted(ctx, offer.ID, farmerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.RaceConflict(nil, "This offer has already been responded to.")
		}

		lock, item, err := s.materialize(ctx, tx, offer, now)
		if err != nil {
			return err
		}

		product, err := tx.GetProduct(ctx, offer.ProductID)
		if err != nil {
			return err
		}

		resp = models.AcceptOfferResponse{
			AcceptedOfferID: lock.ID,
			CartID:          item.CartID,
			CartItemID:      item.ID,
			ExpiresOn:       lock.ExpiryTime,
		}
		effects = append(effects, events.New(events.EventOfferAccepted, now, events.OfferAcceptedData{
			OfferID:         offer.ID,
			AcceptedOfferID: lock.ID,
			CartItemID:      item.ID,
			ProductID:       offer.ProductID,
			ProductName:     product.Name,
			FarmerID:        farmerID,
			ConsumerID:      offer.ConsumerID,
			Price:           lock.AcceptedPrice,
			Quantity:        lock.FixedQty,
			ExpiresAt:       lock.ExpiryTime,
		}))
		return nil
	})
	if err != nil {
		return models.AcceptOfferResponse{}, internal(err, "accept offer")
	}

	s.publish(ctx, effects)
	return resp, nil
}

// materialize creates the price lock and the negotiated cart line for an
// offer already flipped to accepted. It runs inside the caller's transaction.
func (s *Service) materialize(ctx context.Context, tx *database.Tx, offer models.Offer, now time.Time) (models.AcceptedOffer, models.CartItem, error) {
	lock := models.AcceptedOffer{
		ID:            s.newID(),
		OfferID:       offer.ID,
		AcceptedPrice: offer.OfferPricePerUnit,
		FixedQty:      offer.Quantity,
		ExpiryTime:    now.Add(s.policy.PriceLockTTL),
	}
	if err := tx.InsertAcceptedOffer(ctx, lock, now); err != nil {
		if database.IsUniqueViolation(err) {
			return models.AcceptedOffer{}, models.CartItem{}, apperror.RaceConflict(err, "This offer has already been accepted.")
		}
		return models.AcceptedOffer{}, models.CartItem{}, err
	}

	cart, err := tx.EnsureCart(ctx, offer.ConsumerID, s.newID(), now)
	if err != nil {
		return models.AcceptedOffer{}, models.CartItem{}, err
	}

	// never merged with a standard line for the same product
	price := lock.AcceptedPrice
	item := models.CartItem{
		ID:                     s.newID(),
		CartID:                 cart.ID,
		ProductID:              offer.ProductID,
		Quantity:               lock.FixedQty,
		PricePerUnit:           price,
		IsNegotiated:           true,
		NegotiatedPricePerUnit: &price,
		QuantityFixed:          true,
		AcceptedOfferID:        &lock.ID,
		AddedAt:                now,
	}
	if err := tx.InsertCartItem(ctx, item); err != nil {
		return models.AcceptedOffer{}, models.CartItem{}, err
	}

	return lock, item, nil
}

// RejectOffer rejects a pending offer. When the farmer's cumulative rejections
// of this consumer reach the block threshold, the consumer is blocked.
func (s *Service) RejectOffer(ctx context.Context, farmerID, offerID, reason string) (err error) {
	ctx, span := tracing.Start(ctx, "service.RejectOffer", "farmer.id", farmerID, "offer.id", offerID)
	defer func() { tracing.End(span, err) }()

	if err := invalid(validation.ValidateID(offerID, "offerId")); err != nil {
		return err
	}
	reason = validation.SanitizeString(reason)
	if err := invalid(validation.ValidateReason(reason)); err != nil {
		return err
	}

	now := s.now()
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		offer, err := pendingOfferForFarmer(ctx, tx, farmerID, offerID)
		if err != nil {
			return err
		}

		ok, err := tx.MarkOfferRejected(ctx, offer.ID, farmerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.RaceConflict(nil, "This offer has already been responded to.")
		}

		product, err := tx.GetProduct(ctx, offer.ProductID)
		if err != nil {
			return err
		}
		effects = append(effects, events.New(events.EventOfferRejected, now, events.OfferRejectedData{
			OfferID:     offer.ID,
			ProductID:   offer.ProductID,
			ProductName: product.Name,
			FarmerID:    farmerID,
			ConsumerID:  offer.ConsumerID,
			Reason:      reason,
		}))

		if !s.flags.IsEnabled(features.AutoBlock) {
			return nil
		}
		blocked, err := s.autoBlock(ctx, tx, farmerID, offer.ConsumerID, now)
		if err != nil {
			return err
		}
		if blocked != nil {
			effects = append(effects, *blocked)
		}
		return nil
	})
	if err != nil {
		return internal(err, "reject offer")
	}

	s.publish(ctx, effects)
	return nil
}

// autoBlock inserts a block once the rejection threshold is reached and no
// active block exists. It returns the effect to emit, or nil.
func (s *Service) autoBlock(ctx context.Context, tx *database.Tx, farmerID, consumerID string, now time.Time) (*events.Event, error) {
	rejections, err := tx.CountRejections(ctx, farmerID, consumerID)
	if err != nil {
		return nil, err
	}
	if rejections < s.policy.BlockThreshold {
		return nil, nil
	}

	active, err := tx.ActiveBlock(ctx, consumerID, farmerID, now)
	if err != nil || active != nil {
		return nil, err
	}
	if err := tx.DeleteExpiredBlock(ctx, consumerID, farmerID, now); err != nil {
		return nil, err
	}

	block := models.BlockedAccount{
		ID:           s.newID(),
		ConsumerID:   consumerID,
		FarmerID:     farmerID,
		Reason:       fmt.Sprintf("Automatically blocked after %d rejected offers.", rejections),
		BlockedOn:    now,
		BlockedUntil: now.Add(s.policy.BlockDuration),
	}
	inserted, err := tx.InsertBlockIfAbsent(ctx, block)
	if err != nil || !inserted {
		return nil, err
	}

	s.logger.Info().
		Str("farmer_id", farmerID).
		Str("consumer_id", consumerID).
		Int("rejections", rejections).
		Msg("consumer auto-blocked")

	evt := events.New(events.EventConsumerAutoBlocked, now, events.ConsumerAutoBlockedData{
		ConsumerID:   consumerID,
		FarmerID:     farmerID,
		Reason:       block.Reason,
		Rejections:   rejections,
		BlockedUntil: block.BlockedUntil,
	})
	return &evt, nil
}
