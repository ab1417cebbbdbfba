package handler

import (
	"errors"
	"io"
	"net/http"

	"kisan-choice-api/internal/cache"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/payment"
)

type webhookAck struct {
	Received  bool   `json:"received"`
	Applied   bool   `json:"applied,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// PaymentWebhook handles POST /payments/webhook. The body is read raw since
// the signature covers the exact bytes sent by the provider.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.webhookMaxBody))
	if err != nil {
		h.respondFail(w, http.StatusBadRequest, "Webhook Error: unable to read request body.")
		return
	}

	evt, err := h.verifier.Parse(payload, r.Header.Get(payment.SignatureHeader))
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		h.respondError(w, r, err)
		return
	case errors.Is(err, payment.ErrMalformed):
		h.logger.Warn().Err(err).Msg("webhook rejected")
		h.respondFail(w, http.StatusBadRequest, "Webhook Error: malformed event payload.")
		return
	case err != nil:
		h.logger.Warn().Err(err).Msg("webhook rejected")
		h.respondFail(w, http.StatusBadRequest, "Webhook Error: signature verification failed.")
		return
	}

	if !evt.Completed() {
		h.logger.Debug().Str("event_type", evt.Type).Msg("webhook event ignored")
		h.respondJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	ctx := r.Context()
	dedupe := h.dedupe != nil && h.flags.IsEnabled(features.WebhookDedupe)
	if dedupe {
		seen, err := h.dedupe.Seen(ctx, evt.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("event_id", evt.ID).Msg("dedupe lookup failed")
		} else if seen != nil {
			h.respondJSON(w, http.StatusOK, webhookAck{Received: true, Duplicate: true, OrderID: seen.OrderID})
			return
		}
	}

	result, err := h.service.ConfirmPayment(ctx, evt.OrderID, evt.Reference)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if dedupe {
		rec := cache.ProcessedEvent{EventID: evt.ID, OrderID: evt.OrderID, ProcessedAt: h.service.Now()}
		if err := h.dedupe.Remember(ctx, rec); err != nil {
			h.logger.Warn().Err(err).Str("event_id", evt.ID).Msg("failed to remember payment event")
		}
	}

	h.respondJSON(w, http.StatusOK, webhookAck{Received: true, Applied: result.Applied, OrderID: result.OrderID})
}
