// package server assembles the HTTP router, its middleware and the listener lifecycle
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler registers a group of routes on the router.
type Handler interface {
	Mount(r chi.Router)
}

// Pinger reports whether a backing store is reachable. [*sql.DB] satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a [Server].
type Options struct {
	Addr     string
	Logger   *log.Logger
	Reporter *shared.Reporter
	DB       Pinger

	// Middleware runs inside the common stack, closest to the handlers.
	Middleware []Middleware
	Handlers   []Handler
}

// Server is the application's HTTP server.
type Server struct {
	router chi.Router
	http   *http.Server
	logger *log.Logger
}

// New builds the router: request id, real ip, logging, metrics and panic recovery wrap every route,
// then /healthz and /metrics are mounted next to the application handlers.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Metrics)
	r.Use(Recoverer(logger, opts.Reporter))

	r.Get("/healthz", healthz(opts.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		for _, mw := range opts.Middleware {
			r.Use(mw)
		}
		for _, h := range opts.Handlers {
			h.Mount(r)
		}
	})

	return &Server{
		router: r,
		logger: logger,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
