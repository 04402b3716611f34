package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the service routes. Run routes exist only with a RunStore.
func NewRouter(h *Handlers, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/profiles", h.ListProfiles)
		r.Get("/stats", h.GetStats)

		r.Route("/harvests", func(r chi.Router) {
			r.Post("/", h.CreateHarvest)
			r.Get("/", h.ListHarvests)
			r.Get("/{jobID}", h.GetHarvest)
		})

		if h.runs != nil {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.ListRuns)
				r.Get("/{runID}", h.GetRun)
				r.Get("/{runID}/listings", h.ListRunListings)
			})
		}
	})

	return r
}
