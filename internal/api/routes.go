package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/transact-messaging/internal/webhook"
)

// SetupRoutes wires the three named endpoints of spec.md §4.6/§4.7 plus the
// ambient health/readiness probes.
func SetupRoutes(h *Handlers, hc *HealthChecker, in *webhook.Ingestor) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "GET"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", hc.HandleHealth)
	r.Get("/healthz/ready", hc.HandleReadiness)

	r.Post("/webhooks/inbound", in.HandleInbound)
	r.Post("/webhooks/status", in.HandleStatus)

	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Post("/campaigns/{id}/trigger", h.TriggerCampaign)

	return r
}
