package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/cache"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/middleware"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/payment"
	"kisan-choice-api/internal/service"
)

const genericErrorMessage = "Something went very wrong!"

// Pinger reports store health. *database.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service  *service.Service
	verifier *payment.Verifier
	dedupe   *cache.EventDeduper
	flags    *features.Manager
	store    Pinger
	logger   zerolog.Logger

	webhookMaxBody int64
}

// Options holds the collaborators of a handler. Dedupe, Flags and Store may be nil.
type Options struct {
	Verifier *payment.Verifier
	Dedupe   *cache.EventDeduper
	Flags    *features.Manager
	Store    Pinger
	Logger   zerolog.Logger
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service, opts Options) *Handler {
	return &Handler{
		service:        svc,
		verifier:       opts.Verifier,
		dedupe:         opts.Dedupe,
		flags:          opts.Flags,
		store:          opts.Store,
		logger:         opts.Logger.With().Str("component", "handler").Logger(),
		webhookMaxBody: 64 << 10,
	}
}

func principal(r *http.Request) models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

// decode reads a JSON body into dst. An empty body is accepted when optional.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.respondFail(w, http.StatusRequestEntityTooLarge, "Request body is too large.")
	case errors.Is(err, io.EOF):
		h.respondFail(w, http.StatusBadRequest, "Request body is required.")
	default:
		h.respondFail(w, http.StatusBadRequest, "Invalid JSON in request body.")
	}
	return false
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) respondData(w http.ResponseWriter, status int, data interface{}) {
	h.respondJSON(w, status, models.SuccessResponse{Status: "success", Data: data})
}

func (h *Handler) respondList(w http.ResponseWriter, data interface{}, n int) {
	h.respondJSON(w, http.StatusOK, models.SuccessResponse{Status: "success", Results: &n, Data: data})
}

func (h *Handler) respondMessage(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.SuccessResponse{Status: "success", Message: message})
}

func (h *Handler) respondFail(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Status: "fail", Message: message})
}

// respondError maps classified errors to their status. Anything else is
// logged and answered with a generic 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal {
		h.respondFail(w, appErr.HTTPStatus(), appErr.Message)
		return
	}

	h.logger.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	h.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{
		Status:  "error",
		Message: genericErrorMessage,
	})
}
