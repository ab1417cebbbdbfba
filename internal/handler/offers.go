package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/service"
	"kisan-choice-api/internal/validation"
)

// SubmitOffer handles POST /offers
func (h *Handler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitOfferRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	req.ProductID = validation.SanitizeString(req.ProductID)

	resp, err := h.service.SubmitOffer(r.Context(), principal(r).ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, models.SuccessResponse{
		Status:  "success",
		Message: "Offer submitted successfully.",
		Data:    resp,
	})
}

// AcceptOffer handles PATCH /offers/{offerId}/accept
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offerId"))

	resp, err := h.service.RespondToOffer(r.Context(), principal(r).ID, offerID, service.DecisionAccept, "")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.SuccessResponse{
		Status:  "success",
		Message: "Offer accepted and added to the consumer's cart.",
		Data:    resp,
	})
}

// RejectOffer handles PATCH /offers/{offerId}/reject
func (h *Handler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	var req models.RejectOfferRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	offerID := validation.SanitizeString(chi.URLParam(r, "offerId"))

	if _, err := h.service.RespondToOffer(r.Context(), principal(r).ID, offerID, service.DecisionReject, req.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "Offer rejected.")
}

// FarmerOffers handles GET /offers/farmer
func (h *Handler) FarmerOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListFarmerOffers(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, offers, len(offers))
}

// ConsumerOffers handles GET /offers/consumer
func (h *Handler) ConsumerOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListConsumerOffers(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, offers, len(offers))
}

// BlockConsumer handles POST /blocks/{consumerId}
func (h *Handler) BlockConsumer(w http.ResponseWriter, r *http.Request) {
	var req models.BlockRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	consumerID := validation.SanitizeString(chi.URLParam(r, "consumerId"))

	block, err := h.service.BlockConsumer(r.Context(), principal(r).ID, consumerID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusCreated, block)
}

// UnblockConsumer handles DELETE /blocks/{consumerId}
func (h *Handler) UnblockConsumer(w http.ResponseWriter, r *http.Request) {
	consumerID := validation.SanitizeString(chi.URLParam(r, "consumerId"))

	if err := h.service.UnblockConsumer(r.Context(), principal(r).ID, consumerID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondMessage(w, http.StatusOK, "User unblocked successfully.")
}

// ListBlocked handles GET /blocks
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListBlocked(r.Context(), principal(r).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, blocks, len(blocks))
}
