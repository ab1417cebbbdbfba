package service

import (
	"context"
	"time"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/tracing"
	"kisan-choice-api/internal/validation"
)

// SubmitOffer records a pending offer from consumerID on a negotiable product.
func (s *Service) SubmitOffer(ctx context.Context, consumerID string, req models.SubmitOfferRequest) (resp models.SubmitOfferResponse, err error) {
	ctx, span := tracing.Start(ctx, "service.SubmitOffer", "consumer.id", consumerID, "product.id", req.ProductID)
	defer func() { tracing.End(span, err) }()

	if err := invalid(validation.ValidateSubmitOffer(req)); err != nil {
		return models.SubmitOfferResponse{}, err
	}

	now := s.now()
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		product, err := tx.GetProduct(ctx, req.ProductID)
		if notFound(err) {
			return apperror.NotFound("Product not found.")
		}
		if err != nil {
			return err
		}

		if product.SellerID == consumerID {
			return apperror.Validation("You cannot make an offer on your own product.")
		}
		if !product.Negotiate {
			return apperror.Validation("This product is not available for negotiation.")
		}
		if req.Quantity < product.MinQty || req.Quantity > product.MaxQty {
			return apperror.Validation("Quantity must be between %d and %d.", product.MinQty, product.MaxQty)
		}

		blocked, err := tx.IsBlocked(ctx, consumerID, product.SellerID, now)
		if err != nil {
			return err
		}
		if blocked {
			return apperror.Forbidden("You have been blocked by this farmer and cannot make offers.")
		}

		if err := s.checkPairHistory(ctx, tx, req.ProductID, consumerID, now); err != nil {
			return err
		}

		offer := models.Offer{
			ID:                s.newID(),
			ProductID:         product.ID,
			FarmerID:          product.SellerID,
			ConsumerID:        consumerID,
			OfferPricePerUnit: req.OfferedPricePerUnit,
			Quantity:          req.Quantity,
			Status:            models.OfferPending,
			OfferDate:         now,
		}
		if err := tx.InsertOffer(ctx, offer); err != nil {
			if database.IsUniqueViolation(err) {
				return apperror.RaceConflict(err, "You already have a pending offer for this product.")
			}
			return err
		}

		resp = models.SubmitOfferResponse{OfferID: offer.ID, OfferDate: offer.OfferDate}
		effects = append(effects, events.New(events.EventOfferReceived, now, events.OfferReceivedData{
			OfferID:     offer.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			FarmerID:    product.SellerID,
			ConsumerID:  consumerID,
			Price:       offer.OfferPricePerUnit,
			Quantity:    offer.Quantity,
		}))
		return nil
	})
	if err != nil {
		return models.SubmitOfferResponse{}, internal(err, "submit offer")
	}

	s.publish(ctx, effects)
	return resp, nil
}

// checkPairHistory applies the rules that depend on the consumer's latest offer
// for the product.
func (s *Service) checkPairHistory(ctx context.Context, tx *database.Tx, productID, consumerID string, now time.Time) error {
	latest, err := tx.LatestOfferForPair(ctx, productID, consumerID)
	if err != nil || latest == nil {
		return err
	}

	switch latest.Status {
	case models.OfferPending:
		return apperror.Conflict("You already have a pending offer for this product.")
	case models.OfferAccepted:
		return apperror.Conflict("Your offer for this product has already been accepted.")
	case models.OfferRejected:
		if latest.ResponseDate != nil && now.Sub(*latest.ResponseDate) < s.policy.RejectCooldown {
			return apperror.Conflict("You can make a new offer %d hours after a rejection.",
				int(s.policy.RejectCooldown.Hours()))
		}
	}
	return nil
}

// ListFarmerOffers returns the offers a farmer has received, newest first.
func (s *Service) ListFarmerOffers(ctx context.Context, farmerID string) ([]models.OfferView, error) {
	offers, err := s.db.ListOffersForFarmer(ctx, farmerID)
	if err != nil {
		return nil, internal(err, "list farmer offers")
	}
	return offers, nil
}

// ListConsumerOffers returns the offers a consumer has made, newest first.
func (s *Service) ListConsumerOffers(ctx context.Context, consumerID string) ([]models.OfferView, error) {
	offers, err := s.db.ListOffersForConsumer(ctx, consumerID)
	if err != nil {
		return nil, internal(err, "list consumer offers")
	}
	return offers, nil
}
