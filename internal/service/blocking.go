package service

import (
	"context"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/validation"
)

const defaultBlockReason = "Blocked by farmer."

// BlockConsumer adds consumerID to farmerID's block list.
func (s *Service) BlockConsumer(ctx context.Context, farmerID, consumerID, reason string) (models.BlockedAccount, error) {
	if err := invalid(validation.ValidateID(consumerID, "consumerId")); err != nil {
		return models.BlockedAccount{}, err
	}
	if farmerID == consumerID {
		return models.BlockedAccount{}, apperror.Validation("You cannot block yourself.")
	}
	reason = validation.SanitizeString(reason)
	if err := invalid(validation.ValidateReason(reason)); err != nil {
		return models.BlockedAccount{}, err
	}
	if reason == "" {
		reason = defaultBlockReason
	}

	now := s.now()
	block := models.BlockedAccount{
		ID:           s.newID(),
		ConsumerID:   consumerID,
		FarmerID:     farmerID,
		Reason:       reason,
		BlockedOn:    now,
		BlockedUntil: now.Add(s.policy.BlockDuration),
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		user, err := tx.GetUser(ctx, consumerID)
		if notFound(err) || (err == nil && !user.Active) {
			return apperror.NotFound("Consumer to block not found.")
		}
		if err != nil {
			return err
		}

		active, err := tx.ActiveBlock(ctx, consumerID, farmerID, now)
		if err != nil {
			return err
		}
		if active != nil {
			return apperror.Conflict("This user is already blocked by you.")
		}
		if err := tx.DeleteExpiredBlock(ctx, consumerID, farmerID, now); err != nil {
			return err
		}

		if err := tx.InsertBlock(ctx, block); err != nil {
			if database.IsUniqueViolation(err) {
				return apperror.RaceConflict(err, "This user is already blocked (concurrent request).")
			}
			return err
		}
		block.ConsumerName = user.Name
		block.ConsumerMail = user.Email
		return nil
	})
	if err != nil {
		return models.BlockedAccount{}, internal(err, "block consumer")
	}

	s.logger.Info().Str("farmer_id", farmerID).Str("consumer_id", consumerID).Msg("consumer blocked")
	return block, nil
}

// UnblockConsumer removes a block regardless of whether it is still active.
func (s *Service) UnblockConsumer(ctx context.Context, farmerID, consumerID string) error {
	if err := invalid(validation.ValidateID(consumerID, "consumerId")); err != nil {
		return err
	}
	ok, err := s.db.DeleteBlock(ctx, consumerID, farmerID)
	if err != nil {
		return internal(err, "unblock consumer")
	}
	if !ok {
		return apperror.NotFound("No block found for this user.")
	}
	return nil
}

// ListBlocked returns the farmer's active blocks, newest first.
func (s *Service) ListBlocked(ctx context.Context, farmerID string) ([]models.BlockedAccount, error) {
	blocks, err := s.db.ListActiveBlocks(ctx, farmerID, s.now())
	if err != nil {
		return nil, internal(err, "list blocks")
	}
	return blocks, nil
}

// IsBlocked reports whether farmerID currently blocks consumerID.
func (s *Service) IsBlocked(ctx context.Context, consumerID, farmerID string) (bool, error) {
	blocked, err := s.db.IsBlocked(ctx, consumerID, farmerID, s.now())
	if err != nil {
		return false, internal(err, "check block")
	}
	return blocked, nil
}
