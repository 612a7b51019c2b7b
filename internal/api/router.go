package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medisync/cloudsync/internal/broker"
)

type RouterConfig struct {
	Service       *broker.Service
	InstallSecret string
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
	Logger        zerolog.Logger
}

// NewRouter builds the broker's HTTP surface. The route table below is the
// whole dispatch surface: a fixed set of named operations, each bound to its
// handler and auth tier.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Install-secret tier: proves "legitimate clinic software", not identity.
	r.Group(func(r chi.Router) {
		r.Use(InstallSecretMiddleware(cfg.InstallSecret))
		r.Post("/onboard", onboardHandler(cfg.Service))
	})

	// Clinic-key tier: everything scoped to one clinic.
	r.Group(func(r chi.Router) {
		r.Use(ClinicAuthMiddleware(cfg.Service))
		r.Post("/slots", publishSlotsHandler(cfg.Service))
		r.Get("/sync", syncHandler(cfg.Service))
		r.Post("/ack", ackHandler(cfg.Service))
	})

	// Public patient-facing surface.
	r.Get("/clinics", listClinicsHandler(cfg.Service))
	r.Get("/slots/{clinicID}", listSlotsHandler(cfg.Service))
	r.Post("/book", bookHandler(cfg.Service))

	return r
}
