// Package server assembles the HTTP + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stark3693/stakepoll/internal/domain"
	"github.com/stark3693/stakepoll/internal/server/handler"
	"github.com/stark3693/stakepoll/internal/server/middleware"
	"github.com/stark3693/stakepoll/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AuthEnabled turns on wallet-signature verification. When false the
	// address header alone identifies the caller (development only).
	AuthEnabled bool

	// RateLimit caps requests per caller (wallet when authenticated, client
	// IP otherwise) per RateWindow. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Polls  *handler.PollHandler
	Stakes *handler.StakeHandler
	Claims *handler.ClaimHandler
	Audit  *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API server for the staking engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, wallet auth) and
// attaches the WebSocket hub. The limiter is optional.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Poll lifecycle.
	mux.HandleFunc("POST /api/polls", handlers.Polls.CreatePoll)
	mux.HandleFunc("GET /api/polls", handlers.Polls.ListPolls)
	mux.HandleFunc("GET /api/polls/{id}", handlers.Polls.GetPoll)
	mux.HandleFunc("GET /api/polls/{id}/tally", handlers.Polls.GetTally)
	mux.HandleFunc("POST /api/polls/{id}/resolve", handlers.Polls.ResolvePoll)

	// Staking.
	mux.HandleFunc("POST /api/polls/{id}/stake", handlers.Stakes.PlaceStake)
	mux.HandleFunc("GET /api/polls/{id}/positions", handlers.Stakes.ListPositions)

	// Claims.
	mux.HandleFunc("POST /api/polls/{id}/claim/fee", handlers.Claims.ClaimCreatorFee)
	mux.HandleFunc("POST /api/polls/{id}/claim/reward", handlers.Claims.ClaimReward)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first. Auth wraps the limiter and
	// the request log so both see the authenticated wallet on the context.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.Auth(cfg.AuthEnabled)(h)
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
		logger:     logger,
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
