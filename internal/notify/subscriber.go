package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/models"
)

// UserLookup resolves recipients. *database.DB satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Subscriber turns committed effects into notifications.
type Subscriber struct {
	users    UserLookup
	notifier Notifier
	flags    *features.Manager
	logger   zerolog.Logger
}

// NewSubscriber sends through notifier while the notifications flag is on.
// A nil flags manager leaves notifications enabled.
func NewSubscriber(users UserLookup, notifier Notifier, flags *features.Manager, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		users:    users,
		notifier: notifier,
		flags:    flags,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Register subscribes to every effect that has a recipient.
func (s *Subscriber) Register(m *events.Manager) {
	for _, t := range []events.EventType{
		events.EventOfferReceived,
		events.EventOfferAccepted,
		events.EventOfferRejected,
		events.EventConsumerAutoBlocked,
		events.EventOfferLapsed,
		events.EventOrderPaid,
		events.EventOrderStatusChanged,
	} {
		m.Subscribe(t, "notify", s.Handle)
	}
}

// Handle renders and sends the notification for one effect. Unknown
// recipients are skipped; delivery errors are returned for retry.
func (s *Subscriber) Handle(ctx context.Context, evt events.Event) error {
	if !s.flags.IsEnabled(features.Notifications) {
		return nil
	}
	n, ok := render(evt)
	if !ok {
		return nil
	}

	user, err := s.users.GetUser(ctx, n.UserID)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Warn().Str("user_id", n.UserID).Str("event", string(evt.Type)).Msg("notification recipient not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	n.Email = user.Email
	n.Name = firstName(user.Name)

	return s.notifier.Notify(ctx, n)
}

func firstName(name string) string {
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}

func render(evt events.Event) (models.Notification, bool) {
	switch d := evt.Data.(type) {
	case events.OfferReceivedData:
		return models.Notification{
			UserID:   d.FarmerID,
			Template: "offerNotification",
			Subject:  "You Have Received a New Offer on Your Product",
			Data: map[string]string{
				"offerId":     d.OfferID,
				"productName": d.ProductName,
				"price":       d.Price.StringFixed(2),
				"quantity":    strconv.Itoa(d.Quantity),
			},
		}, true
	case events.OfferAcceptedData:
		return models.Notification{
			UserID:   d.ConsumerID,
			Template: "offerAccepted",
			Subject:  fmt.Sprintf("Your offer has been accepted for %s", d.ProductName),
			Data: map[string]string{
				"productName":   d.ProductName,
				"acceptedPrice": d.Price.StringFixed(2),
				"quantity":      strconv.Itoa(d.Quantity),
				"expiryDate":    d.ExpiresAt.Format(time.RFC1123),
			},
		}, true
	case events.OfferRejectedData:
		return models.Notification{
			UserID:   d.ConsumerID,
			Template: "offerRejected",
			Subject:  "Your Offer was Rejected",
			Data: map[string]string{
				"productName":     d.ProductName,
				"rejectionReason": d.Reason,
			},
		}, true
	case events.ConsumerAutoBlockedData:
		return models.Notification{
			UserID:   d.FarmerID,
			Template: "consumerAutoBlocked",
			Subject:  "A consumer was blocked after repeated rejections",
			Data: map[string]string{
				"consumerId":   d.ConsumerID,
				"rejections":   strconv.Itoa(d.Rejections),
				"blockedUntil": d.BlockedUntil.Format(time.RFC1123),
			},
		}, true
	case events.OfferLapsedData:
		return models.Notification{
			UserID:   d.ConsumerID,
			Template: "offerLapsed",
			Subject:  "Your negotiated price has expired",
			Data: map[string]string{
				"offerId":   d.OfferID,
				"productId": d.ProductID,
			},
		}, true
	case events.OrderPaidData:
		return models.Notification{
			UserID:   d.ConsumerID,
			Template: "orderPaid",
			Subject:  "Payment received for your order",
			Data: map[string]string{
				"orderId": d.OrderID,
				"total":   d.Total.StringFixed(2),
			},
		}, true
	case events.OrderStatusChangedData:
		return models.Notification{
			UserID:   d.ConsumerID,
			Template: "orderStatus",
			Subject:  fmt.Sprintf("Your order is now %s", d.To),
			Data: map[string]string{
				"orderId": d.OrderID,
				"from":    d.From,
				"to":      d.To,
			},
		}, true
	}
	return models.Notification{}, false
}
