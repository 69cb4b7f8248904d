package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/media-pipeline/internal/api/middleware"
	"github.com/phrazzld/media-pipeline/internal/api/shared"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the admin handler, the metrics handler and the health
// endpoint onto a chi router. metrics may be nil.
func NewRouter(h *AdminHandler, metrics http.Handler, health HealthCheck, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(logger))

	r.Route("/admin", func(r chi.Router) {
		r.Get("/pools", h.GetPools)

		r.Route("/batch", func(r chi.Router) {
			r.Post("/trigger", h.TriggerBatch)
			r.Post("/pause", h.PauseBatch)
			r.Post("/resume", h.ResumeBatch)
			r.Put("/size", h.SetBatchSize)
			r.Get("/statistics", h.GetStatistics)
		})

		r.Get("/artifacts/{id}", h.GetArtifact)
		r.Post("/artifacts/{id}/process", h.ProcessArtifact)

		r.Get("/dlq", h.ListDeadLetters)
		r.Post("/dlq/{id}/replay", h.ReplayDeadLetter)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unhealthy", err)
				return
			}
		}
		shared.RespondWithAck(w, r, http.StatusOK, "OK")
	})

	return r
}
