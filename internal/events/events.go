package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EventType represents the type of a committed effect.
type EventType string

const (
	// EventOfferReceived is emitted when a consumer's offer is recorded
	EventOfferReceived EventType = "offer.received"
	// EventOfferAccepted is emitted when a farmer accepts an offer and the price lock is created
	EventOfferAccepted EventType = "offer.accepted"
	// EventOfferRejected is emitted when a farmer rejects an offer
	EventOfferRejected EventType = "offer.rejected"
	// EventConsumerAutoBlocked is emitted when the rejection threshold blocks a consumer
	EventConsumerAutoBlocked EventType = "consumer.auto_blocked"
	// EventOfferLapsed is emitted when the reaper lapses an unused price lock
	EventOfferLapsed EventType = "offer.lapsed"
	// EventOrderPaid is emitted when a payment confirmation is applied
	EventOrderPaid EventType = "order.paid"
	// EventOrderStatusChanged is emitted on any fulfilment status change
	EventOrderStatusChanged EventType = "order.status_changed"
)

// Event is an effect to attempt after its transaction committed.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

type OfferReceivedData struct {
	OfferID     string
	ProductID   string
	ProductName string
	FarmerID    string
	ConsumerID  string
	Price       decimal.Decimal
	Quantity    int
}

type OfferAcceptedData struct {
	OfferID         string
	AcceptedOfferID string
	CartItemID      string
	ProductID       string
	ProductName     string
	FarmerID        string
	ConsumerID      string
	Price           decimal.Decimal
	Quantity        int
	ExpiresAt       time.Time
}

type OfferRejectedData struct {
	OfferID     string
	ProductID   string
	ProductName string
	FarmerID    string
	ConsumerID  string
	Reason      string
}

type ConsumerAutoBlockedData struct {
	ConsumerID   string
	FarmerID     string
	Reason       string
	Rejections   int
	BlockedUntil time.Time
}

type OfferLapsedData struct {
	OfferID         string
	AcceptedOfferID string
	CartItemID      string
	ConsumerID      string
	ProductID       string
}

type OrderPaidData struct {
	OrderID          string
	ConsumerID       string
	PaymentReference string
	Total            decimal.Decimal
	Anomalies        int
}

type OrderStatusChangedData struct {
	OrderID    string
	ConsumerID string
	From       string
	To         string
}

// New builds an event stamped with at.
func New(eventType EventType, at time.Time, data interface{}) Event {
	return Event{Type: eventType, Timestamp: at, Data: data}
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Publisher accepts committed effects.
type Publisher interface {
	Publish(ctx context.Context, evts ...Event)
}

// Options tunes delivery retries.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
}

type subscription struct {
	name    string
	handler Handler
}

// Manager dispatches committed effects to subscribers. Handlers run
// asynchronously and their failures never reach the publisher.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	all      []subscription
	enabled  bool
	opts     Options
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger zerolog.Logger, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Manager{
		handlers: make(map[EventType][]subscription),
		enabled:  enabled,
		opts:     opts,
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe subscribes a named handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], subscription{name: name, handler: handler})
}

// SubscribeAll subscribes a named handler to every event type.
func (m *Manager) SubscribeAll(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.all = append(m.all, subscription{name: name, handler: handler})
}

// Publish hands events to their subscribers. It never blocks on delivery.
// The read lock is held until every delivery is counted so Shutdown cannot
// start waiting between the enabled check and wg.Add.
func (m *Manager) Publish(ctx context.Context, evts ...Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return
	}

	// delivery outlives the request that committed the effect
	ctx = context.WithoutCancel(ctx)

	for _, event := range evts {
		subs := append(append([]subscription{}, m.handlers[event.Type]...), m.all...)
		for _, sub := range subs {
			m.wg.Add(1)
			go func(sub subscription, event Event) {
				defer m.wg.Done()
				m.deliver(ctx, sub, event)
			}(sub, event)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, sub subscription, event Event) {
	var err error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		if err = safeCall(ctx, sub.handler, event); err == nil {
			return
		}
		m.logger.Warn().Err(err).
			Str("subscriber", sub.name).
			Str("event", string(event.Type)).
			Int("attempt", attempt).
			Msg("effect delivery failed")

		if attempt < m.opts.MaxAttempts && m.opts.Backoff > 0 {
			time.Sleep(m.opts.Backoff * time.Duration(attempt))
		}
	}
	m.logger.Error().Err(err).
		Str("subscriber", sub.name).
		Str("event", string(event.Type)).
		Msg("effect dropped after retries")
}

func safeCall(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, event)
}

// Wait blocks until every in-flight delivery has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting events and drains in-flight deliveries.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()

	m.wg.Wait()
}

// Recorder is a Publisher that keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evts ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of one type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) {}
