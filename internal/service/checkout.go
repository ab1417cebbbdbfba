package service

import (
	"context"

	"github.com/shopspring/decimal"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/tracing"
	"kisan-choice-api/internal/validation"
)

// InitiateCheckout creates a pending order from the consumer's cart. Stock is
// checked but not reserved, and the cart is left intact until payment.
func (s *Service) InitiateCheckout(ctx context.Context, consumerID string, req models.CheckoutRequest) (order models.Order, err error) {
	ctx, span := tracing.Start(ctx, "service.InitiateCheckout", "consumer.id", consumerID)
	defer func() { tracing.End(span, err) }()

	address := validation.SanitizeString(req.DeliveryAddress)
	if err := invalid(validation.ValidateDeliveryAddress(address)); err != nil {
		return models.Order{}, err
	}

	now := s.now()
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		cart, err := tx.GetCartByConsumer(ctx, consumerID)
		if err != nil {
			return err
		}
		if cart == nil {
			return apperror.NotFound("Cart not found.")
		}

		lines, err := tx.CartLines(ctx, consumerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperror.Validation("Your cart is empty.")
		}

		order = models.Order{
			ID:              s.newID(),
			ConsumerID:      consumerID,
			TotalAmount:     decimal.Zero,
			PaymentStatus:   models.PaymentPending,
			OrderStatus:     models.OrderPending,
			DeliveryAddress: address,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, l := range lines {
			if l.Quantity > l.StockQuantity {
				return apperror.InsufficientStock(l.ProductID, l.ProductName, l.StockQuantity)
			}
			price := l.EffectivePrice()
			total := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			order.Items = append(order.Items, models.OrderItem{
				ID:               s.newID(),
				OrderID:          order.ID,
				ProductID:        l.ProductID,
				Quantity:         l.Quantity,
				PricePerUnitPaid: price,
				TotalPrice:       total,
			})
			order.TotalAmount = order.TotalAmount.Add(total)
		}

		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return models.Order{}, internal(err, "initiate checkout")
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("consumer_id", consumerID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("checkout initiated")
	return order, nil
}

// ConfirmPayment applies a confirmed payment to an order: marks it paid,
// decrements stock with a guard per line and clears the consumer's cart.
// Redelivery of the same confirmation is a no-op. Only the payment status
// gates the update: money captured for an order cancelled in the meantime
// still reinstates it. A line whose guard fails is recorded as an anomaly and
// does not stop the order from completing.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, reference string) (result models.PaymentConfirmation, err error) {
	ctx, span := tracing.Start(ctx, "service.ConfirmPayment", "order.id", orderID)
	defer func() { tracing.End(span, err) }()

	result.OrderID = orderID
	if err := invalid(validation.ValidateID(orderID, "orderId")); err != nil {
		return result, apperror.NotFound("Order not found.")
	}

	now := s.now()
	var order models.Order
	var effects []events.Event

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if notFound(err) {
			return apperror.NotFound("Order not found.")
		}
		if err != nil {
			return err
		}
		if order.PaymentStatus != models.PaymentPending {
			return nil
		}

		applied, err := tx.CompletePayment(ctx, orderID, reference, now)
		if err != nil || !applied {
			return err
		}
		result.Applied = true

		for _, item := range order.Items {
			ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			anomaly := models.StockAnomaly{
				ID:         s.newID(),
				OrderID:    orderID,
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				DetectedAt: now,
			}
			if err := tx.InsertStockAnomaly(ctx, anomaly); err != nil {
				return err
			}
			result.Anomalies = append(result.Anomalies, anomaly)
		}

		if _, err := tx.ClearCart(ctx, order.ConsumerID); err != nil {
			return err
		}

		effects = append(effects,
			events.New(events.EventOrderPaid, now, events.OrderPaidData{
				OrderID:          orderID,
				ConsumerID:       order.ConsumerID,
				PaymentReference: reference,
				Total:            order.TotalAmount,
				Anomalies:        len(result.Anomalies),
			}),
			events.New(events.EventOrderStatusChanged, now, events.OrderStatusChangedData{
				OrderID:    orderID,
				ConsumerID: order.ConsumerID,
				From:       order.OrderStatus,
				To:         models.OrderProcessing,
			}),
		)
		return nil
	})
	if err != nil {
		return models.PaymentConfirmation{OrderID: orderID}, internal(err, "confirm payment")
	}

	if !result.Applied {
		if order.PaymentStatus == models.PaymentCompleted {
			s.logger.Info().Str("order_id", orderID).Msg("duplicate payment confirmation")
			return result, nil
		}
		s.logger.Warn().
			Str("order_id", orderID).
			Str("payment_status", order.PaymentStatus).
			Str("order_status", order.OrderStatus).
			Msg("payment confirmation ignored; order not awaiting payment")
		return result, nil
	}

	for _, a := range result.Anomalies {
		s.logger.Error().
			Str("severity", "critical").
			Str("order_id", a.OrderID).
			Str("product_id", a.ProductID).
			Int("quantity", a.Quantity).
			Msg("stock oversold: guarded decrement matched no row")
	}
	if order.OrderStatus != models.OrderPending {
		s.logger.Error().
			Str("severity", "critical").
			Str("order_id", orderID).
			Str("previous_status", order.OrderStatus).
			Msg("payment captured for order no longer pending; order reinstated")
	}
	s.logger.Info().Str("order_id", orderID).Str("reference", reference).Msg("payment applied")

	s.publish(ctx, effects)
	return result, nil
}

// StockAnomalies lists oversold lines recorded during payment confirmation.
func (s *Service) StockAnomalies(ctx context.Context) ([]models.StockAnomaly, error) {
	anomalies, err := s.db.ListStockAnomalies(ctx)
	if err != nil {
		return nil, internal(err, "list stock anomalies")
	}
	return anomalies, nil
}
