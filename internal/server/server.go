// Package server assembles the HTTP and WebSocket API surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/server/handler"
	"github.com/miko-labs/futurify/internal/server/middleware"
	"github.com/miko-labs/futurify/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter throttles per-client request rates when set.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Predictions *handler.PredictionHandler
	Accounts    *handler.AccountHandler
	Decrypt     *handler.DecryptHandler
}

// Server is the HTTP + WebSocket API server for the confidential prediction
// market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by convention, but the auth middleware
	// wraps everything uniformly; an empty APIKey disables it).
	mux.HandleFunc("GET /api/v1/health", handlers.Health.HealthCheck)

	// Deposits and balances.
	mux.HandleFunc("POST /api/v1/deposits", handlers.Accounts.Deposit)
	mux.HandleFunc("GET /api/v1/accounts/{address}/balance", handlers.Accounts.Balance)

	// Market lifecycle and bets.
	mux.HandleFunc("POST /api/v1/predictions", handlers.Predictions.Create)
	mux.HandleFunc("GET /api/v1/predictions", handlers.Predictions.List)
	mux.HandleFunc("GET /api/v1/predictions/{id}", handlers.Predictions.Get)
	mux.HandleFunc("GET /api/v1/predictions/{id}/totals", handlers.Predictions.Totals)
	mux.HandleFunc("POST /api/v1/predictions/{id}/bets", handlers.Predictions.PlaceBet)
	mux.HandleFunc("POST /api/v1/predictions/{id}/close", handlers.Predictions.Close)
	mux.HandleFunc("GET /api/v1/predictions/{id}/wagers/{address}", handlers.Predictions.Wager)

	// Cleartext recovery and grant inspection.
	mux.HandleFunc("POST /api/v1/decrypt", handlers.Decrypt.Decrypt)
	mux.HandleFunc("GET /api/v1/grants/{handle}", handlers.Decrypt.Grants)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler exposes the fully wrapped handler chain, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
