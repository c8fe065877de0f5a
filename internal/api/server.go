package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter builds the router with global middlewares and all routes.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(d.Logger))
	r.Use(Instrument)

	r.Get("/health", Health(d))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(middleware.Timeout(d.RequestTimeout))
		}
		r.Get("/gather", Gather(d))
		r.Get("/files", Files(d))
		r.Get("/file", File(d))
		r.Get("/user", User(d))
		r.Get("/first-bookmark", FirstBookmark(d))
		r.Get("/state", State(d))
	})

	return r
}

// Server wraps the HTTP server.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, d Deps) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// gather passes answer slowly
		WriteTimeout:   d.RequestTimeout + 30*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return &Server{http: s, logger: d.Logger}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server within the ctx deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
