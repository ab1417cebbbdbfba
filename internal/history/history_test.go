package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kisan-choice-api/internal/events"
)

type fakeCollection struct {
	docs []interface{}
	err  error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{}, nil
}

func TestHandleRecordsTransitions(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		evt    events.Event
		entity string
		from   string
		to     string
	}{
		{"accepted", events.New(events.EventOfferAccepted, at, events.OfferAcceptedData{OfferID: "o1", FarmerID: "f"}), "offer", "pending", "accepted"},
		{"rejected", events.New(events.EventOfferRejected, at, events.OfferRejectedData{OfferID: "o1", FarmerID: "f"}), "offer", "pending", "rejected"},
		{"lapsed", events.New(events.EventOfferLapsed, at, events.OfferLapsedData{OfferID: "o1", ConsumerID: "c"}), "offer", "accepted", "lapsed"},
		{"order", events.New(events.EventOrderStatusChanged, at, events.OrderStatusChangedData{OrderID: "ord", From: "shipped", To: "delivered"}), "order", "shipped", "delivered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll := &fakeCollection{}
			r := NewRecorder(coll, zerolog.Nop())
			if err := r.Handle(context.Background(), tt.evt); err != nil {
				t.Fatal(err)
			}
			if len(coll.docs) != 1 {
				t.Fatalf("inserted %d docs", len(coll.docs))
			}
			doc := coll.docs[0].(StatusChange)
			if doc.EntityType != tt.entity || doc.From != tt.from || doc.To != tt.to {
				t.Errorf("doc = %+v", doc)
			}
			if !doc.CreatedAt.Equal(at) || doc.Event != string(tt.evt.Type) {
				t.Errorf("doc metadata = %+v", doc)
			}
		})
	}
}

func TestHandleIgnoresOtherEffects(t *testing.T) {
	coll := &fakeCollection{}
	r := NewRecorder(coll, zerolog.Nop())
	evt := events.New(events.EventOrderPaid, time.Now(), events.OrderPaidData{OrderID: "ord"})

	if err := r.Handle(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if len(coll.docs) != 0 {
		t.Error("order paid has no status document")
	}
}

func TestHandleWrapsInsertError(t *testing.T) {
	boom := errors.New("no primary")
	r := NewRecorder(&fakeCollection{err: boom}, zerolog.Nop())
	evt := events.New(events.EventOfferRejected, time.Now(), events.OfferRejectedData{OfferID: "o"})

	if err := r.Handle(context.Background(), evt); !errors.Is(err, boom) {
		t.Errorf("Handle() error = %v", err)
	}
}
