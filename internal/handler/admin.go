package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kisan-choice-api/internal/validation"
)

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Error().Err(err).Msg("health check failed")
			h.respondJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Database: "down"})
			return
		}
	}
	h.respondJSON(w, http.StatusOK, healthStatus{Status: "ok", Database: "up"})
}

// StockAnomalies handles GET /admin/anomalies
func (h *Handler) StockAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := h.service.StockAnomalies(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, anomalies, len(anomalies))
}

// ReapPriceLocks handles POST /admin/reap
func (h *Handler) ReapPriceLocks(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ReapExpiredPriceLocks(r.Context(), h.service.Now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, result)
}

// ListFeatures handles GET /admin/features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	flags := h.flags.List()
	h.respondList(w, flags, len(flags))
}

type featureRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetFeature handles PATCH /admin/features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.Enabled == nil {
		h.respondFail(w, http.StatusBadRequest, "enabled is required.")
		return
	}
	name := validation.SanitizeString(chi.URLParam(r, "name"))

	if !h.flags.Set(name, *req.Enabled) {
		h.respondFail(w, http.StatusNotFound, "Unknown feature flag.")
		return
	}
	h.logger.Info().Str("flag", name).Bool("enabled", *req.Enabled).Msg("feature flag changed")
	h.respondMessage(w, http.StatusOK, "Feature flag updated.")
}
