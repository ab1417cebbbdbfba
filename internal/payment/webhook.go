package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader carries the provider signature of a webhook delivery.
const SignatureHeader = "Stripe-Signature"

// CheckoutCompleted is the event type that confirms payment for an order.
const CheckoutCompleted = "checkout.session.completed"

var (
	ErrNotConfigured    = errors.New("payment: webhook secret not configured")
	ErrInvalidSignature = errors.New("payment: webhook signature verification failed")
	ErrMalformed        = errors.New("payment: malformed webhook payload")
)

// Event is a verified provider event reduced to what payment confirmation needs.
type Event struct {
	ID   string
	Type string
	// OrderID is the client reference attached when the checkout session was created.
	OrderID string
	// Reference is the provider transaction id.
	Reference string
}

// Completed reports whether the event confirms a payment.
func (e Event) Completed() bool {
	return e.Type == CheckoutCompleted
}

// Verifier authenticates webhook deliveries with the shared signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier uses the provider's default tolerance when tolerance is not positive.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Parse verifies the signature over the raw body and decodes the event.
func (v *Verifier) Parse(payload []byte, signature string) (Event, error) {
	if v == nil || v.secret == "" {
		return Event{}, ErrNotConfigured
	}
	if signature == "" {
		return Event{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if !out.Completed() {
		return out, nil
	}

	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%w: event has no data object", ErrMalformed)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if session.ClientReferenceID == "" {
		return Event{}, fmt.Errorf("%w: missing client_reference_id", ErrMalformed)
	}

	out.OrderID = session.ClientReferenceID
	out.Reference = session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		out.Reference = session.PaymentIntent.ID
	}
	return out, nil
}
