package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcmrelay/mpps-proxy/internal/middleware"
)

// RouterConfig carries the handful of main.go-supplied settings the
// router needs beyond Deps (CORS policy, metrics toggle), matching the
// teacher's cmd/server/main.go router-assembly block.
type RouterConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MetricsEnabled bool
}

// NewRouter assembles the admin chi router exactly the way the teacher's
// cmd/server/main.go does: RequestID/RealIP, panic Recovery, request
// Logging, gzip Compress, then CORS, then routes.
func NewRouter(h *Handler, rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rc.AllowedOrigins,
		AllowedMethods:   rc.AllowedMethods,
		AllowedHeaders:   rc.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	if rc.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/forward-rules", h.ForwardRules)
		r.Post("/reload", h.Reload)
		r.Post("/sweep", h.Sweep)
		r.Get("/spool/{destinationAET}", h.SpoolBacklog)
	})

	return r
}
