package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the lifecycle state of a negotiation offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferLapsed   OfferStatus = "lapsed"
)

// Role is the capability a principal was authenticated with.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleFarmer   Role = "farmer"
	RoleAdmin    Role = "admin"
)

// Payment and fulfilment states of an order.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"

	OrderPending           = "pending"
	OrderProcessing        = "processing"
	OrderShipped           = "shipped"
	OrderDelivered         = "delivered"
	OrderCancelled         = "cancelled"
	OrderCancelledByFarmer = "cancelled_by_farmer"
)

// Principal is the authenticated caller, resolved once at the HTTP boundary.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// User is the subset of the users table the negotiation core reads.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

// Product is a catalog listing. StockQuantity is decremented only on confirmed payment.
type Product struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	MinQty        int             `json:"min_qty"`
	MaxQty        int             `json:"max_qty"`
	Negotiate     bool            `json:"negotiate"`
}

// Offer is a consumer's proposed price and quantity for a negotiable product.
type Offer struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	FarmerID          string          `json:"farmer_id"`
	ConsumerID        string          `json:"consumer_id"`
	OfferPricePerUnit decimal.Decimal `json:"offer_price_per_unit"`
	Quantity          int             `json:"quantity"`
	Status            OfferStatus     `json:"status"`
	RejectionCount    int             `json:"rejection_count"`
	OfferDate         time.Time       `json:"offer_date"`
	ResponseDate      *time.Time      `json:"response_date,omitempty"`
}

// OfferView is an offer joined with product and counterparty names for listings.
type OfferView struct {
	Offer
	ProductName      string `json:"product_name"`
	CounterpartyID   string `json:"counterparty_id"`
	CounterpartyName string `json:"counterparty_name"`
}

// AcceptedOffer is the time-boxed price lock created when a farmer accepts an offer.
type AcceptedOffer struct {
	ID            string          `json:"id"`
	OfferID       string          `json:"offer_id"`
	AcceptedPrice decimal.Decimal `json:"accepted_price"`
	FixedQty      int             `json:"fixed_qty"`
	ExpiryTime    time.Time       `json:"expiry_time"`
}

// Cart belongs to exactly one consumer.
type Cart struct {
	ID         string `json:"id"`
	ConsumerID string `json:"consumer_id"`
}

// CartItem is a cart line. Negotiated lines carry a locked price and a fixed quantity.
type CartItem struct {
	ID                     string           `json:"id"`
	CartID                 string           `json:"cart_id"`
	ProductID              string           `json:"product_id"`
	Quantity               int              `json:"quantity"`
	PricePerUnit           decimal.Decimal  `json:"price_per_unit"`
	IsNegotiated           bool             `json:"is_negotiated"`
	NegotiatedPricePerUnit *decimal.Decimal `json:"negotiated_price_per_unit,omitempty"`
	QuantityFixed          bool             `json:"quantity_fixed"`
	AcceptedOfferID        *string          `json:"accepted_offer_id,omitempty"`
	AddedAt                time.Time        `json:"added_at"`
}

// CartLine is a cart item joined with its live product row.
type CartLine struct {
	CartItem
	ProductName   string          `json:"product_name"`
	SellerID      string          `json:"seller_id"`
	CatalogPrice  decimal.Decimal `json:"original_product_price"`
	StockQuantity int             `json:"stock_quantity"`
	MinQty        int             `json:"min_qty"`
	MaxQty        int             `json:"max_qty"`
}

// EffectivePrice is the unit price the consumer pays for this line.
func (l CartLine) EffectivePrice() decimal.Decimal {
	if l.IsNegotiated && l.NegotiatedPricePerUnit != nil {
		return *l.NegotiatedPricePerUnit
	}
	return l.CatalogPrice
}

// Order is created at checkout initiation and paid by the payment webhook.
type Order struct {
	ID               string          `json:"id"`
	ConsumerID       string          `json:"consumer_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaymentStatus    string          `json:"payment_status"`
	OrderStatus      string          `json:"order_status"`
	DeliveryAddress  string          `json:"delivery_address"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	Items            []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots quantity and the unit price actually paid.
type OrderItem struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	PricePerUnitPaid decimal.Decimal `json:"price_per_unit_paid"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

// BlockedAccount denies a consumer from sending offers to a farmer until BlockedUntil.
type BlockedAccount struct {
	ID           string    `json:"id"`
	ConsumerID   string    `json:"user_id"`
	FarmerID     string    `json:"farmer_id"`
	Reason       string    `json:"reason"`
	BlockedOn    time.Time `json:"blocked_on"`
	BlockedUntil time.Time `json:"blocked_until"`
	ConsumerName string    `json:"consumer_name,omitempty"`
	ConsumerMail string    `json:"consumer_email,omitempty"`
}

// Active reports whether the block still applies at now.
func (b BlockedAccount) Active(now time.Time) bool {
	return b.BlockedUntil.After(now)
}

// StockAnomaly records a paid order line whose guarded stock decrement matched no row.
type StockAnomaly struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	DetectedAt time.Time `json:"detected_at"`
}

// Notification is an outbound message to a user, rendered from a committed effect.
type Notification struct {
	UserID   string            `json:"user_id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Template string            `json:"template"`
	Subject  string            `json:"subject"`
	Data     map[string]string `json:"data,omitempty"`
}
