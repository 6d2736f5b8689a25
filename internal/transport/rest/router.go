package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/akwaba/rentpay/internal/auth"
	"github.com/akwaba/rentpay/internal/intent"
	"github.com/akwaba/rentpay/internal/reconcile"
	"github.com/akwaba/rentpay/internal/transport/middleware"
	"github.com/akwaba/rentpay/internal/transport/swagger"
	"github.com/go-chi/chi"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, authMiddleware *auth.Middleware, intentHandler *intent.Handler, webhookHandler *reconcile.WebhookHandler, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway-facing callback ingress; authenticated by HMAC signature,
		// not by bearer token.
		if webhookHandler != nil {
			r.Post("/callbacks/settlement", webhookHandler.HandleSettlementCallback)
		}

		// Protected routes that require authentication
		if authMiddleware != nil && intentHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(authMiddleware.RequireUser)

				pr.Route("/payment-intents", func(ir chi.Router) {
					ir.Post("/", intentHandler.CreateIntent)        // POST /payment-intents
					ir.Get("/", intentHandler.ListIntents)          // GET /payment-intents
					ir.Get("/{reference}", intentHandler.GetIntent) // GET /payment-intents/:reference
				})
			})
		}
	})
}
