package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/visualmatch/internal/web/handlers"
	"github.com/kozaktomas/visualmatch/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.engines, s.engines.Extractor())
	subjectsHandler := handlers.NewSubjectsHandler(s.logger.Named("subjects"))
	backfillHandler := handlers.NewBackfillHandler(s.engines.Locker(), s.config.Backfill.BatchSize, s.logger.Named("backfill"))

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Post("/colors/classify", handlers.ClassifyColors)

		// Per-kind routes get the kind's engine injected
		r.Route("/{kind}", func(r chi.Router) {
			r.Use(middleware.WithEngine(s.engines))

			r.Post("/subjects", subjectsHandler.Create)
			r.Get("/subjects/{id}", subjectsHandler.Get)
			r.Delete("/subjects/{id}", subjectsHandler.Delete)
			r.Post("/subjects/{id}/register", subjectsHandler.Register)
			r.Post("/similar", handlers.FindSimilar)
			r.Post("/backfill", backfillHandler.Run)
		})
	})
}
