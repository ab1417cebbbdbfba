package service

import (
	"context"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/validation"
)

// farmerTransitions lists, for each status a farmer may set, the statuses it
// may be reached from.
var farmerTransitions = map[string][]string{
	models.OrderProcessing:        {},
	models.OrderShipped:           {models.OrderProcessing},
	models.OrderDelivered:         {models.OrderShipped},
	models.OrderCancelledByFarmer: {models.OrderProcessing},
}

// ListOrders returns the consumer's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, consumerID string) ([]models.Order, error) {
	orders, err := s.db.ListOrdersByConsumer(ctx, consumerID)
	if err != nil {
		return nil, internal(err, "list orders")
	}
	return orders, nil
}

// GetOrder returns one of the consumer's orders with its items.
func (s *Service) GetOrder(ctx context.Context, consumerID, orderID string) (models.Order, error) {
	if err := validation.ValidateID(orderID, "orderId"); err != nil {
		return models.Order{}, apperror.NotFound("Order not found.")
	}
	order, err := s.db.GetOrder(ctx, orderID)
	if notFound(err) || (err == nil && order.ConsumerID != consumerID) {
		return models.Order{}, apperror.NotFound("Order not found.")
	}
	if err != nil {
		return models.Order{}, internal(err, "get order")
	}
	return order, nil
}

// CancelOrder cancels one of the consumer's orders while it is pending and unpaid.
func (s *Service) CancelOrder(ctx context.Context, consumerID, orderID string) (models.Order, error) {
	if err := validation.ValidateID(orderID, "orderId"); err != nil {
		return models.Order{}, apperror.NotFound("Order not found.")
	}

	now := s.now()
	var order models.Order
	var effects []events.Event

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if notFound(err) || (err == nil && order.ConsumerID != consumerID) {
			return apperror.NotFound("Order not found.")
		}
		if err != nil {
			return err
		}

		ok, err := tx.CancelPendingOrder(ctx, orderID, consumerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("Only pending, unpaid orders can be cancelled.")
		}

		effects = append(effects, events.New(events.EventOrderStatusChanged, now, events.OrderStatusChangedData{
			OrderID:    orderID,
			ConsumerID: consumerID,
			From:       order.OrderStatus,
			To:         models.OrderCancelled,
		}))
		order.OrderStatus = models.OrderCancelled
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Order{}, internal(err, "cancel order")
	}

	s.publish(ctx, effects)
	return order, nil
}

// UpdateOrderStatus lets a farmer with a product in a paid order move it
// along its fulfilment path. Setting the current status again is a no-op.
func (s *Service) UpdateOrderStatus(ctx context.Context, farmerID, orderID, next string) (models.Order, error) {
	if err := invalid(validation.ValidateFarmerOrderStatus(next)); err != nil {
		return models.Order{}, err
	}
	if err := validation.ValidateID(orderID, "orderId"); err != nil {
		return models.Order{}, apperror.NotFound("Order not found.")
	}

	now := s.now()
	var order models.Order
	var effects []events.Event

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if notFound(err) {
			return apperror.NotFound("Order not found.")
		}
		if err != nil {
			return err
		}

		owns, err := tx.FarmerHasProductInOrder(ctx, orderID, farmerID)
		if err != nil {
			return err
		}
		if !owns {
			return apperror.Forbidden("You do not have permission to update this order.")
		}
		if order.PaymentStatus != models.PaymentCompleted {
			return apperror.Conflict("Order payment has not been completed.")
		}
		if order.OrderStatus == next {
			return nil
		}

		from := farmerTransitions[next]
		if !contains(from, order.OrderStatus) {
			return apperror.Conflict("Cannot change order status from %s to %s.", order.OrderStatus, next)
		}
		ok, err := tx.TransitionOrderStatus(ctx, orderID, from, next, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.RaceConflict(nil, "Order status changed concurrently; please retry.")
		}

		effects = append(effects, events.New(events.EventOrderStatusChanged, now, events.OrderStatusChangedData{
			OrderID:    orderID,
			ConsumerID: order.ConsumerID,
			From:       order.OrderStatus,
			To:         next,
		}))
		order.OrderStatus = next
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Order{}, internal(err, "update order status")
	}

	s.publish(ctx, effects)
	return order, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
