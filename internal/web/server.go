// Package web exposes build and replay passes over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/metrics"
	"github.com/JonMunkholm/mlready/internal/pgexport"
	mw "github.com/JonMunkholm/mlready/internal/web/middleware"
)

// DefaultMaxUploadBytes caps request bodies when Options leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// Options configure a Server. Engine is required; Metrics and DB are
// optional.
type Options struct {
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	DB      pgexport.DB

	MaxConcurrent  int
	MaxWait        time.Duration
	MaxUploadBytes int64
	RequestTimeout time.Duration

	APIKeys        []string
	TrustedProxies []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP front end of the engine.
type Server struct {
	opts    Options
	engine  *engine.Engine
	metrics *metrics.Metrics
	db      pgexport.DB
	limiter *Limiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes and middleware.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("web: engine is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}

	s := &Server{
		opts:    opts,
		engine:  opts.Engine,
		metrics: opts.Metrics,
		db:      opts.DB,
		limiter: NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.opts.RequestTimeout))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.opts.APIKeys))

		r.Post("/build", s.handleBuild)
		r.Post("/replay", s.handleReplay)
		r.Post("/report", s.handleReport)
	})
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("server starting", "addr", addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for running passes to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the handler tree, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Limiter returns the pass limiter.
func (s *Server) Limiter() *Limiter {
	return s.limiter
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
