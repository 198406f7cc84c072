package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mightyhooks/internal/dispatch"
	"mightyhooks/internal/ingress"
	"mightyhooks/internal/metrics"
	"mightyhooks/internal/route"
	"mightyhooks/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout = 10 * time.Second
	HTTPIdleTimeout = 60 * time.Second

	// ShutdownTimeout bounds the drain of in-flight requests.
	ShutdownTimeout = 10 * time.Second

	ServerName = "Mighty Hooks"
)

// Options configures the listener.
type Options struct {
	Addr string

	// TLS is enabled when both are set.
	TLSCert string
	TLSKey  string

	// DispatchTimeout bounds the whole fan-out of one request; 0 = none.
	DispatchTimeout time.Duration

	// Tracing wraps the router with an otelhttp handler.
	Tracing bool
}

// Server represents the HTTP server
type Server struct {
	Routes     *route.Table
	Validator  *ingress.Validator
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics // nil disables /metrics
	Logger     *slog.Logger

	opts Options
}

// NewServer creates a new server instance
func NewServer(routes *route.Table, validator *ingress.Validator, dispatcher *dispatch.Dispatcher, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	return &Server{
		Routes:     routes,
		Validator:  validator,
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     logger,
		opts:       opts,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(serverHeader)
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Reserved routes, never hook paths
	r.Get("/health", s.HandleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	// Everything else is the hook space
	r.Post("/*", s.HandleHook)

	if s.opts.Tracing {
		return telemetry.Handler(r, "mightyhooks.ingress")
	}
	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	tls := s.opts.TLSCert != "" && s.opts.TLSKey != ""

	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  HTTPIdleTimeout,
	}

	s.Logger.Info("Starting server", "addr", s.opts.Addr, "tls", tls, "hooks", s.Routes.Len())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls {
			err = server.ListenAndServeTLS(s.opts.TLSCert, s.opts.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.Logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// writeTimeout leaves room for the fan-out; with no dispatch timeout the
// response may take as long as the slowest destination.
func (s *Server) writeTimeout() time.Duration {
	if s.opts.DispatchTimeout <= 0 {
		return 0
	}
	return s.opts.DispatchTimeout + HTTPReadTimeout
}
