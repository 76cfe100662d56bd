package router

import (
	"net/http"

	"stockguard/internal/config"
	"stockguard/internal/handler"
	"stockguard/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	checkoutHandler *handler.CheckoutHandler,
	notificationHandler *handler.NotificationHandler,
	productHandler *handler.ProductHandler,
	orderHandler *handler.OrderHandler,
	adminHandler *handler.AdminHandler,
	auth config.AuthConfig,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Applied in order: Recovery -> RequestID -> Logging -> CORS
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS)

	// Health check endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	})

	// The provider authenticates with the notification signature.
	r.Post("/api/payments/notifications", notificationHandler.Handle)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(auth.APIKey, logger))

		r.Get("/api/products/{id}/availability", productHandler.Availability)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(logger))

			r.Post("/api/checkout", checkoutHandler.Stage)
			r.Post("/api/checkout/{correlationId}/cod", checkoutHandler.ConfirmCashOnDelivery)
			r.Get("/api/orders/{id}", orderHandler.GetByID)
			r.Post("/api/orders/{id}/refund", orderHandler.RequestRefund)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(auth.AdminAPIKey, logger))

		r.Post("/orders/{id}/refund/resolve", adminHandler.ResolveRefund)
		r.Post("/orders/{id}/status", adminHandler.Transition)
		r.Post("/stock/adjustments", adminHandler.Adjust)
		r.Get("/stock/{productId}/history", adminHandler.History)
		r.Get("/stock/{productId}/audit", adminHandler.Audit)
	})

	return r
}
