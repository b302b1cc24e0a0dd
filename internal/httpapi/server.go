package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Config holds the HTTP-facing settings.
type Config struct {
	Addr           string
	Secret         string
	AllowedOrigins []string
	ForceHTTPS     bool
}

// Server exposes the migration endpoints over HTTP.
type Server struct {
	cfg     Config
	log     logrus.FieldLogger
	db      Pinger
	handler *MigrationHandler
}

// New creates a Server.
func New(cfg Config, log logrus.FieldLogger, db Pinger, m Migrator) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		db:      db,
		handler: NewMigrationHandler(m, log),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// A migration run holds the request open until every script finishes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http server starting")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.log.Info("http server shutting down")

		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.log))
	r.Use(SecureHeaders(s.cfg.ForceHTTPS))

	r.Method(http.MethodGet, "/health", HealthHandler{DB: s.db})

	r.Route("/api/migrations", func(api chi.Router) {
		if s.cfg.ForceHTTPS {
			api.Use(ForceHTTPS)
		}

		api.Use(CORS(s.cfg.AllowedOrigins))
		api.Use(RequireBearer(s.cfg.Secret, s.log))

		api.Post("/run", s.handler.Run)
		api.Get("/status", s.handler.Status)
	})

	return r
}
