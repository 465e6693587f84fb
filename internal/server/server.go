// Package server exposes the market ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/poolwise/poolmarket/internal/server/handler"
	"github.com/poolwise/poolmarket/internal/server/middleware"
	"github.com/poolwise/poolmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Rate limiting applies only when a limiter is wired in Handlers.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Bets       *handler.BetHandler
	Settlement *handler.SettlementHandler
	Admin      *handler.AdminHandler
	Accounts   *handler.AccountHandler
	Events     *handler.EventsHandler // nil without a signal bus
}

// Server is the HTTP + WebSocket API server for the market ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter rateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/odds", handlers.Markets.GetOdds)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.CancelMarket)

	// Betting.
	mux.HandleFunc("GET /api/markets/{id}/bets", handlers.Bets.ListBets)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets/{bettor}", handlers.Bets.ListBettorBets)

	// Settlement.
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Settlement.ClaimWinnings)
	mux.HandleFunc("POST /api/markets/{id}/refund", handlers.Settlement.RefundBets)

	// Admin.
	mux.HandleFunc("GET /api/admin/params", handlers.Admin.GetParams)
	mux.HandleFunc("PUT /api/admin/fee", handlers.Admin.SetPlatformFee)
	mux.HandleFunc("PUT /api/admin/limits", handlers.Admin.SetBetLimits)
	mux.HandleFunc("GET /api/admin/resolvers", handlers.Admin.ListResolvers)
	mux.HandleFunc("PUT /api/admin/resolvers", handlers.Admin.SetResolver)
	mux.HandleFunc("GET /api/admin/fees", handlers.Admin.CollectedFees)
	mux.HandleFunc("POST /api/admin/fees/withdraw", handlers.Admin.WithdrawFees)

	// Accounts.
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Accounts.GetBalance)
	mux.HandleFunc("POST /api/accounts/{address}/deposit", handlers.Accounts.Deposit)
	mux.HandleFunc("POST /api/accounts/{address}/withdraw", handlers.Accounts.Withdraw)

	// Durable event replay.
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
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
		logger:     logger,
	}
}

// rateLimiter matches domain.RateLimiter without importing it here.
type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
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
