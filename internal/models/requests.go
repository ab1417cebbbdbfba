package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmitOfferRequest is the body of POST /offers.
type SubmitOfferRequest struct {
	ProductID           string          `json:"productId"`
	OfferedPricePerUnit decimal.Decimal `json:"offeredPricePerUnit"`
	Quantity            int             `json:"quantity"`
}

// SubmitOfferResponse is returned when an offer is recorded.
type SubmitOfferResponse struct {
	OfferID   string    `json:"offerId"`
	OfferDate time.Time `json:"offerDate"`
}

// RejectOfferRequest carries the optional reason a farmer gives.
type RejectOfferRequest struct {
	Reason string `json:"reason"`
}

// AcceptOfferResponse describes the price lock and cart line created on acceptance.
type AcceptOfferResponse struct {
	AcceptedOfferID string    `json:"acceptedOfferId"`
	CartID          string    `json:"cartId"`
	CartItemID      string    `json:"cartItemId"`
	ExpiresOn       time.Time `json:"expiresOn"`
}

// BlockRequest is the body of POST /blocks/{consumerId}.
type BlockRequest struct {
	Reason string `json:"reason"`
}

// AddToCartRequest adds a standard (non-negotiated) line. Zero quantity means product min_qty.
type AddToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateCartItemRequest changes the quantity of a standard line.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// CartView is the priced content of a consumer's cart.
type CartView struct {
	CartID     string          `json:"cart_id,omitempty"`
	Lines      []CartLineView  `json:"cart"`
	TotalPrice decimal.Decimal `json:"overall_total_price"`
}

// CartLineView is a cart line with its effective price resolved.
type CartLineView struct {
	CartLine
	EffectivePricePerUnit decimal.Decimal `json:"effective_price_per_unit"`
	TotalItemPrice        decimal.Decimal `json:"total_item_price"`
}

// CheckoutRequest starts Phase A of checkout.
type CheckoutRequest struct {
	DeliveryAddress string `json:"delivery_address"`
}

// OrderStatusRequest is the body of the farmer status update.
type OrderStatusRequest struct {
	Status string `json:"new_status"`
}

// PaymentConfirmation is the outcome of Phase B for one order reference.
type PaymentConfirmation struct {
	OrderID   string         `json:"order_id"`
	Applied   bool           `json:"applied"`
	Anomalies []StockAnomaly `json:"anomalies,omitempty"`
}

// ReapResult summarises one Expiry Reaper pass.
type ReapResult struct {
	RemovedCartItems int      `json:"removed_cart_items"`
	LapsedOfferIDs   []string `json:"lapsed_offer_ids"`
}

// SuccessResponse wraps successful payloads.
type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Results *int        `json:"results,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the body of every rejected request. Status is "fail" for
// client errors and "error" for server errors.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
