package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	galleryHandler := handlers.NewGalleryHandler(s.deps.Service, s.log.With("component", "gallery"))
	identifyHandler := handlers.NewIdentifyHandler(s.deps.Service)
	sessionsHandler := handlers.NewSessionsHandler(s.sessions)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Session event streams live as long as the session and are not
		// bounded by the request timeout.
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(s.requestTimeout()))

			r.Get("/health", handlers.HealthCheck)

			// Gallery
			r.Get("/gallery", galleryHandler.List)
			r.Post("/gallery/similar", galleryHandler.Similar)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireToken(s.config.Web.APIToken))
				r.Post("/gallery/enroll", galleryHandler.Enroll)
				r.Delete("/gallery/{name}", galleryHandler.Remove)
			})

			// Identification
			r.Post("/identify", identifyHandler.Identify)
			r.Post("/identify/image", identifyHandler.IdentifyImage)

			// Attendance sessions
			r.Post("/sessions", sessionsHandler.Create)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Post("/sessions/{id}/observe", sessionsHandler.Observe)
			r.Delete("/sessions/{id}", sessionsHandler.End)
		})
	})
}

// requestTimeout bounds every API request except session event streams.
func (s *Server) requestTimeout() time.Duration {
	if s.config.Web.RequestTimeout > 0 {
		return s.config.Web.RequestTimeout
	}
	return constants.RequestTimeout
}
