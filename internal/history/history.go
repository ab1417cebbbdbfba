package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/models"
)

// DefaultCollection holds one document per offer or order status transition.
const DefaultCollection = "history_status"

// StatusChange is a single transition of an offer or order.
type StatusChange struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EntityType string             `bson:"entity_type"`
	EntityID   string             `bson:"entity_id"`
	UserID     string             `bson:"user_id"`
	From       string             `bson:"from,omitempty"`
	To         string             `bson:"to"`
	Event      string             `bson:"event"`
	CreatedAt  time.Time          `bson:"created_at"`
}

type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Recorder appends status transitions to MongoDB.
type Recorder struct {
	collection inserter
	timeout    time.Duration
	logger     zerolog.Logger
}

// Connect opens a client for uri and returns a recorder on database/collection.
func Connect(ctx context.Context, uri, database, collection string, logger zerolog.Logger) (*Recorder, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return NewRecorder(client.Database(database).Collection(collection), logger), client, nil
}

func NewRecorder(collection inserter, logger zerolog.Logger) *Recorder {
	return &Recorder{
		collection: collection,
		timeout:    5 * time.Second,
		logger:     logger.With().Str("component", "history").Logger(),
	}
}

// Register subscribes the recorder to offer and order transitions.
func (r *Recorder) Register(m *events.Manager) {
	for _, t := range []events.EventType{
		events.EventOfferReceived,
		events.EventOfferAccepted,
		events.EventOfferRejected,
		events.EventOfferLapsed,
		events.EventOrderStatusChanged,
	} {
		m.Subscribe(t, "history", r.Handle)
	}
}

func (r *Recorder) Handle(ctx context.Context, evt events.Event) error {
	doc, ok := statusChange(evt)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert history status: %w", err)
	}
	r.logger.Debug().Str("entity", doc.EntityType).Str("id", doc.EntityID).Str("to", doc.To).Msg("status recorded")
	return nil
}

func statusChange(evt events.Event) (StatusChange, bool) {
	doc := StatusChange{Event: string(evt.Type), CreatedAt: evt.Timestamp}
	switch d := evt.Data.(type) {
	case events.OfferReceivedData:
		doc.EntityType, doc.EntityID, doc.UserID = "offer", d.OfferID, d.ConsumerID
		doc.To = string(models.OfferPending)
	case events.OfferAcceptedData:
		doc.EntityType, doc.EntityID, doc.UserID = "offer", d.OfferID, d.FarmerID
		doc.From, doc.To = string(models.OfferPending), string(models.OfferAccepted)
	case events.OfferRejectedData:
		doc.EntityType, doc.EntityID, doc.UserID = "offer", d.OfferID, d.FarmerID
		doc.From, doc.To = string(models.OfferPending), string(models.OfferRejected)
	case events.OfferLapsedData:
		doc.EntityType, doc.EntityID, doc.UserID = "offer", d.OfferID, d.ConsumerID
		doc.From, doc.To = string(models.OfferAccepted), string(models.OfferLapsed)
	case events.OrderStatusChangedData:
		doc.EntityType, doc.EntityID, doc.UserID = "order", d.OrderID, d.ConsumerID
		doc.From, doc.To = d.From, d.To
	default:
		return StatusChange{}, false
	}
	return doc, true
}
