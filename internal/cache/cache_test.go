package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := NewInMemoryCacheWithClock(clock.Now)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	clock.Advance(time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestInMemoryCacheSetNX(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", []byte("a"), time.Hour)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	ok, err = c.SetNX(ctx, "lock", []byte("b"), time.Hour)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v", ok, err)
	}
	got, _ := c.Get(ctx, "lock")
	if string(got) != "a" {
		t.Errorf("value = %q, want a", got)
	}

	if err := c.Delete(ctx, "lock"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.SetNX(ctx, "lock", []byte("c"), 0); !ok {
		t.Error("SetNX after Delete should succeed")
	}
}

func TestEventDeduper(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	d := NewEventDeduper(NewInMemoryCacheWithClock(clock.Now), 72*time.Hour)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "evt_1")
	if err != nil || seen != nil {
		t.Fatalf("Seen() before Remember = %v, %v", seen, err)
	}

	want := ProcessedEvent{EventID: "evt_1", OrderID: "order-1", ProcessedAt: clock.Now()}
	if err := d.Remember(ctx, want); err != nil {
		t.Fatal(err)
	}
	seen, err = d.Seen(ctx, "evt_1")
	if err != nil || seen == nil || seen.OrderID != "order-1" {
		t.Fatalf("Seen() = %+v, %v", seen, err)
	}

	clock.Advance(73 * time.Hour)
	if seen, _ := d.Seen(ctx, "evt_1"); seen != nil {
		t.Error("event should be forgotten after the ttl")
	}
}
