package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/validation"
)

// ViewCart handles GET /cart
func (h *Handler) ViewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ViewCart(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, view)
}

// AddToCart handles POST /cart
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	req.ProductID = validation.SanitizeString(req.ProductID)

	item, err := h.service.AddToCart(r.Context(), principal(r).ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusCreated, item)
}

// UpdateCartItem handles PUT /cart/{itemId}
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCartItemRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	itemID := validation.SanitizeString(chi.URLParam(r, "itemId"))

	item, err := h.service.UpdateCartItem(r.Context(), principal(r).ID, itemID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, item)
}

// RemoveCartItem handles DELETE /cart/{itemId}
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID := validation.SanitizeString(chi.URLParam(r, "itemId"))

	if err := h.service.RemoveCartItem(r.Context(), principal(r).ID, itemID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Item removed from cart.")
}

// ClearCart handles POST /cart/clear
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.ClearCart(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]int{"removed_items": removed})
}

// Checkout handles POST /cart/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	order, err := h.service.InitiateCheckout(r.Context(), principal(r).ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusCreated, order)
}
