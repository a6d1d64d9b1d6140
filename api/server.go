/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the payroll frontend

ROUTE GROUPS:
  /api/citizens/*       Calculation previews and per-citizen master data
  /api/periods/*        Period workflow, runs and payouts
  /api/rates            Master rate table
  /api/holidays/*       Public holiday calendar
  /api/rules            Effective leave rules
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness

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

// NewRouter creates a new router with all routes configured. Empty
// corsOrigins allows the local frontend dev servers.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/citizens/{id}", func(r chi.Router) {
			r.Get("/calculation", h.GetCalculation)
			r.Get("/retroactive", h.GetRetroactive)
			r.Post("/eligibility", h.CreateEligibility)
			r.Post("/movements", h.CreateMovement)
			r.Post("/licenses", h.CreateLicense)
			r.Post("/leaves", h.CreateLeave)
			r.Put("/quotas", h.PutQuota)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Post("/", h.CreatePeriod)
			r.Get("/open", h.ListOpenPeriods)
			r.Route("/{year}/{month}", func(r chi.Router) {
				r.Get("/", h.GetPeriod)
				r.Put("/status", h.UpdatePeriodStatus)
				r.Post("/run", h.RunPeriod)
				r.Get("/payouts", h.ListPayouts)
				r.Post("/citizens/{id}/recompute", h.RecomputeCitizen)
			})
		})

		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Post("/", h.CreateRate)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{date}", h.DeleteHoliday)
		})

		r.Get("/rules", h.GetRules)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
