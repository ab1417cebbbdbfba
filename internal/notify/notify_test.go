package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/models"
)

type fakeUsers map[string]models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, database.ErrNotFound
	}
	return u, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (c *captureNotifier) Notify(_ context.Context, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) all() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notification(nil), c.sent...)
}

var users = fakeUsers{
	"farmer-1":   {ID: "farmer-1", Name: "Ravi Kumar", Email: "ravi@example.com", Role: models.RoleFarmer, Active: true},
	"consumer-1": {ID: "consumer-1", Name: "Asha", Email: "asha@example.com", Role: models.RoleConsumer, Active: true},
}

func TestHandleRoutesToRecipient(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		evt      events.Event
		userID   string
		template string
	}{
		{
			name: "offer received goes to farmer",
			evt: events.New(events.EventOfferReceived, at, events.OfferReceivedData{
				OfferID: "o1", FarmerID: "farmer-1", ConsumerID: "consumer-1",
				ProductName: "Tomatoes", Price: decimal.NewFromInt(40), Quantity: 10,
			}),
			userID:   "farmer-1",
			template: "offerNotification",
		},
		{
			name: "offer accepted goes to consumer",
			evt: events.New(events.EventOfferAccepted, at, events.OfferAcceptedData{
				OfferID: "o1", FarmerID: "farmer-1", ConsumerID: "consumer-1",
				ProductName: "Tomatoes", Price: decimal.NewFromInt(40), Quantity: 10, ExpiresAt: at.Add(48 * time.Hour),
			}),
			userID:   "consumer-1",
			template: "offerAccepted",
		},
		{
			name: "auto block goes to farmer",
			evt: events.New(events.EventConsumerAutoBlocked, at, events.ConsumerAutoBlockedData{
				ConsumerID: "consumer-1", FarmerID: "farmer-1", Rejections: 3, BlockedUntil: at.AddDate(0, 0, 30),
			}),
			userID:   "farmer-1",
			template: "consumerAutoBlocked",
		},
		{
			name: "order status goes to consumer",
			evt: events.New(events.EventOrderStatusChanged, at, events.OrderStatusChangedData{
				OrderID: "ord-1", ConsumerID: "consumer-1", From: "processing", To: "shipped",
			}),
			userID:   "consumer-1",
			template: "orderStatus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &captureNotifier{}
			s := NewSubscriber(users, n, nil, zerolog.Nop())

			if err := s.Handle(context.Background(), tt.evt); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			sent := n.all()
			if len(sent) != 1 {
				t.Fatalf("sent %d notifications, want 1", len(sent))
			}
			got := sent[0]
			if got.UserID != tt.userID || got.Template != tt.template {
				t.Errorf("notification = %+v", got)
			}
			if got.Email != users[tt.userID].Email || got.Subject == "" {
				t.Errorf("recipient not resolved: %+v", got)
			}
		})
	}
}

func TestHandleFirstName(t *testing.T) {
	n := &captureNotifier{}
	s := NewSubscriber(users, n, nil, zerolog.Nop())
	evt := events.New(events.EventOfferReceived, time.Now(), events.OfferReceivedData{FarmerID: "farmer-1"})

	if err := s.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if got := n.all()[0].Name; got != "Ravi" {
		t.Errorf("Name = %q, want Ravi", got)
	}
}

func TestHandleSkipsUnknownRecipient(t *testing.T) {
	n := &captureNotifier{}
	s := NewSubscriber(users, n, nil, zerolog.Nop())
	evt := events.New(events.EventOrderPaid, time.Now(), events.OrderPaidData{OrderID: "o", ConsumerID: "ghost"})

	if err := s.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(n.all()) != 0 {
		t.Error("nothing should be sent to an unknown user")
	}
}

func TestHandleRespectsNotificationsFlag(t *testing.T) {
	n := &captureNotifier{}
	flags := features.NewDefaultManager(nil)
	s := NewSubscriber(users, n, flags, zerolog.Nop())
	evt := events.New(events.EventOfferRejected, time.Now(), events.OfferRejectedData{ConsumerID: "consumer-1"})

	flags.Disable(features.Notifications)
	if err := s.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if len(n.all()) != 0 {
		t.Fatal("notification sent while the flag is off")
	}

	flags.Enable(features.Notifications)
	if err := s.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if len(n.all()) != 1 {
		t.Errorf("sent %d notifications after re-enabling, want 1", len(n.all()))
	}
}

func TestHandleReturnsDeliveryError(t *testing.T) {
	boom := errors.New("smtp down")
	s := NewSubscriber(users, &captureNotifier{err: boom}, nil, zerolog.Nop())
	evt := events.New(events.EventOfferRejected, time.Now(), events.OfferRejectedData{ConsumerID: "consumer-1"})

	if err := s.Handle(context.Background(), evt); !errors.Is(err, boom) {
		t.Errorf("Handle() error = %v, want %v", err, boom)
	}
}

func TestRegisterReceivesPublishedEffects(t *testing.T) {
	n := &captureNotifier{}
	m := events.NewManager(true, zerolog.Nop(), events.Options{MaxAttempts: 1})
	NewSubscriber(users, n, nil, zerolog.Nop()).Register(m)

	m.Publish(context.Background(),
		events.New(events.EventOfferLapsed, time.Now(), events.OfferLapsedData{ConsumerID: "consumer-1", OfferID: "o1"}),
		events.New(events.EventOrderPaid, time.Now(), events.OrderPaidData{ConsumerID: "consumer-1", OrderID: "ord"}),
	)
	m.Wait()

	if got := len(n.all()); got != 2 {
		t.Errorf("sent %d notifications, want 2", got)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierMessage(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaNotifier{writer: w}

	n := models.Notification{UserID: "consumer-1", Template: "orderPaid", Subject: "Payment received for your order"}
	if err := k.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "user-consumer-1" {
		t.Errorf("key = %q", msg.Key)
	}
	var decoded models.Notification
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Template != "orderPaid" || decoded.UserID != "consumer-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}
