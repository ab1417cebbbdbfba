package cache

import (
	"context"
	"errors"
	"time"
)

// ProcessedEvent records the outcome of a payment event that was applied.
type ProcessedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// EventDeduper remembers processed provider events for a TTL so replays can
// be acknowledged without touching the store.
type EventDeduper struct {
	cache Cache
	ttl   time.Duration
}

func NewEventDeduper(c Cache, ttl time.Duration) *EventDeduper {
	return &EventDeduper{cache: c, ttl: ttl}
}

func eventKey(eventID string) string {
	return "payment-event:" + eventID
}

// Seen returns the recorded outcome for eventID, or nil if it was never processed.
func (d *EventDeduper) Seen(ctx context.Context, eventID string) (*ProcessedEvent, error) {
	var ev ProcessedEvent
	err := GetJSON(ctx, d.cache, eventKey(eventID), &ev)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Remember records eventID as processed.
func (d *EventDeduper) Remember(ctx context.Context, ev ProcessedEvent) error {
	return SetJSON(ctx, d.cache, eventKey(ev.EventID), ev, d.ttl)
}
