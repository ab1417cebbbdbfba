package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/validation"
)

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, orders, len(orders))
}

// GetOrder handles GET /orders/{orderId}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := validation.SanitizeString(chi.URLParam(r, "orderId"))

	order, err := h.service.GetOrder(r.Context(), principal(r).ID, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, order)
}

// CancelOrder handles PATCH /orders/{orderId}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := validation.SanitizeString(chi.URLParam(r, "orderId"))

	order, err := h.service.CancelOrder(r.Context(), principal(r).ID, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, order)
}

// UpdateOrderStatus handles PATCH /orders/{orderId}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req models.OrderStatusRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	orderID := validation.SanitizeString(chi.URLParam(r, "orderId"))

	order, err := h.service.UpdateOrderStatus(r.Context(), principal(r).ID, orderID, validation.SanitizeString(req.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, order)
}
