// Package api exposes the knowledge engine over HTTP.
//
// Endpoints:
//
//	GET    /health            liveness probe
//	GET    /ready             readiness probe (pings the database)
//	GET    /search            hybrid search
//	POST   /learn             ingest a document (chunked, optional supersede)
//	GET    /user-model        read a user profile
//	POST   /user-model        deep-merge update a user profile
//	DELETE /user-model        reset a user profile
//	GET    /procedural        find procedures for a situation
//	POST   /procedural        learn or merge a procedure
//	POST   /procedural/usage  record a successful use
//	GET    /episodic          find related episodes
//	POST   /episodic          record an episode
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request IDs, logging
//   - ratelimit.go: per-client rate limiting
//   - search.go, learn.go: document endpoints
//   - usermodel.go, procedural.go, episodic.go: memory-layer endpoints
//   - health.go: probes
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jellycore/oracle/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum wait for the next request on keep-alive
	// connections.
	IdleTimeout = 120 * time.Second
)

// Options configure the server beyond its handlers.
type Options struct {
	// RatePerSec and RateBurst bound per-client request rates.
	// RatePerSec <= 0 disables rate limiting.
	RatePerSec float64
	RateBurst  int

	// TrustProxy honors X-Real-IP / X-Forwarded-For when identifying
	// clients. Enable only behind a reverse proxy.
	TrustProxy bool

	// Sidecar is probed by /health for collaborator reachability.
	// Nil reports the sidecar as disabled.
	Sidecar SidecarChecker
}

// Server is the HTTP server for the knowledge engine API.
type Server struct {
	mux    *http.ServeMux
	opts   Options
	logger log.Logger

	health     *HealthHandler
	search     *SearchHandler
	learn      *LearnHandler
	userModel  *UserModelHandler
	procedural *ProceduralHandler
	episodic   *EpisodicHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, docs DocumentStore, users UserModelStore, procs ProcedureStore, eps EpisodeStore, opts Options, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:        mux,
		opts:       opts,
		logger:     logger,
		health:     NewHealthHandler(pool, opts.Sidecar, logger),
		search:     NewSearchHandler(docs, logger),
		learn:      NewLearnHandler(docs, logger),
		userModel:  NewUserModelHandler(users, logger),
		procedural: NewProceduralHandler(procs, logger),
		episodic:   NewEpisodicHandler(eps, logger),
	}

	s.health.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.learn.RegisterRoutes(mux)
	s.userModel.RegisterRoutes(mux)
	s.procedural.RegisterRoutes(mux)
	s.episodic.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → request ID → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
	}
	if s.opts.RatePerSec > 0 {
		limiter := newClientLimiter(s.opts.RatePerSec, s.opts.RateBurst, s.opts.TrustProxy)
		middlewares = append(middlewares, limiter.middleware)
	}
	return chain(s.mux, middlewares...)
}

// Run starts the HTTP server and blocks until the context is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// chain applies middleware in order: first middleware wraps outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
