package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"kisan-choice-api/internal/middleware"
	"kisan-choice-api/internal/models"
)

// RouterOptions configures the middleware stack around the handlers.
type RouterOptions struct {
	Logger         zerolog.Logger
	Verifier       middleware.TokenVerifier
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	MaxBodySize    int64
	Tracing        bool
}

// NewRouter mounts every route under /api/v1. Roles are checked here and
// nowhere else; handlers pass plain ids to the service.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// order matters
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	if opts.Tracing {
		r.Use(middleware.Tracing())
	}
	if opts.RateLimiter != nil {
		r.Use(middleware.RateLimit(opts.RateLimiter))
	}
	r.Use(middleware.MaxBodySize(opts.MaxBodySize))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: len(origins) != 1 || origins[0] != "*",
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.Verifier))

			consumer := middleware.RequireRole(models.RoleConsumer)
			farmer := middleware.RequireRole(models.RoleFarmer)

			r.Route("/offers", func(r chi.Router) {
				r.With(consumer).Post("/", h.SubmitOffer)
				r.With(consumer).Get("/consumer", h.ConsumerOffers)
				r.With(farmer).Get("/farmer", h.FarmerOffers)
				r.With(farmer).Patch("/{offerId}/accept", h.AcceptOffer)
				r.With(farmer).Patch("/{offerId}/reject", h.RejectOffer)
			})

			r.Route("/blocks", func(r chi.Router) {
				r.Use(farmer)
				r.Get("/", h.ListBlocked)
				r.Post("/{consumerId}", h.BlockConsumer)
				r.Delete("/{consumerId}", h.UnblockConsumer)
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(consumer)
				r.Get("/", h.ViewCart)
				r.Post("/", h.AddToCart)
				r.Post("/clear", h.ClearCart)
				r.Post("/checkout", h.Checkout)
				r.Put("/{itemId}", h.UpdateCartItem)
				r.Delete("/{itemId}", h.RemoveCartItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(consumer).Get("/", h.ListOrders)
				r.With(consumer).Get("/{orderId}", h.GetOrder)
				r.With(consumer).Patch("/{orderId}/cancel", h.CancelOrder)
				r.With(farmer).Patch("/{orderId}/status", h.UpdateOrderStatus)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/anomalies", h.StockAnomalies)
				r.Post("/reap", h.ReapPriceLocks)
				if h.flags != nil {
					r.Get("/features", h.ListFeatures)
					r.Patch("/features/{name}", h.SetFeature)
				}
			})
		})
	})

	return r
}
