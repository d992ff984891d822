/**
 * @description
 * HTTP router setup for the bank-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers settlement routes.
func NewRouter(h *Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Bank service is healthy"))
	})

	r.Route("/bank-api", func(r chi.Router) {
		r.Post("/balance", h.handleBalance)
		r.Post("/transfer", h.handleTransfer)

		r.Group(func(r chi.Router) {
			r.Use(InternalAuthMiddleware(internalKey))
			r.Post("/transfer-lms-to-instructor", h.handlePayout)
			r.Get("/transfers/{idempotencyKey}", h.handleGetTransfer)
		})
	})

	return r
}
