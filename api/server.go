/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/cards        Card policies
  /api/purchases/*  One-off purchase entry
  /api/templates/*  Recurring charges and per-month overrides
  /api/estimates/*  Monthly estimates and plan reflection
  /api/plan/*       Reflected plan line items

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/cards", h.ListCards)

		// Purchase routes
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.CreatePurchase)
			r.Get("/{id}", h.GetPurchase)
			r.Put("/{id}", h.EditPurchase)
			r.Delete("/{id}", h.DeletePurchase)
		})

		// Recurring charge routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Put("/{id}", h.EditTemplate)
			r.Delete("/{id}", h.DeleteTemplate)

			r.Route("/{id}/months/{ym}", func(r chi.Router) {
				r.Put("/", h.EditSnapshot)
				r.Delete("/", h.SkipMonth)
				r.Post("/revert", h.RevertMonth)
			})
		})

		// Estimate routes
		r.Route("/estimates", func(r chi.Router) {
			r.Get("/", h.GetEstimates)
			r.Get("/closed", h.GetClosedEstimates)
			r.Post("/reflect", h.Reflect)
		})

		r.Get("/plan/{ym}", h.GetPlan)
	})

	return r
}
