package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

const sessionSweepInterval = time.Minute

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Service *recognition.Service
	Sink    attendance.Sink  // optional, receives every attendance event
	Metrics *metrics.Metrics // optional, enables /metrics
	Logger  *logger.Logger
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	sessions   *handlers.SessionManager
	log        *logger.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	r := chi.NewRouter()

	sessions := handlers.NewSessionManager(deps.Service, handlers.SessionOptions{
		ConfirmFrames: cfg.Match.ConfirmFrames,
		MinConfidence: cfg.Match.MinConfidence,
		Sink:          deps.Sink,
		Metrics:       deps.Metrics,
		Logger:        deps.Logger.With("component", "sessions"),
	})

	s := &Server{
		config:   cfg,
		deps:     deps,
		router:   r,
		sessions: sessions,
		log:      deps.Logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for uploads, event streams lift it
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and the idle session cleanup.
func (s *Server) Start() error {
	s.sessions.StartCleanup(sessionSweepInterval)

	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	// Ends open sessions so SSE streams return before the server waits on them.
	s.sessions.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Sessions returns the attendance session manager.
func (s *Server) Sessions() *handlers.SessionManager {
	return s.sessions
}
