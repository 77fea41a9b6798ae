package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/server/handler"
	"github.com/yesnolabs/venue/internal/server/middleware"
	"github.com/yesnolabs/venue/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKeys         []string // if empty, authentication is disabled
	AdminAPIKeys    []string // extra gate on market admin endpoints
	RateLimitPerMin int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	// DefaultFeeRate is applied to created markets that omit a fee rate.
	DefaultFeeRate float64
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Book      *handler.BookHandler
	Liquidity *handler.LiquidityHandler
	Resolve   *handler.ResolveHandler
	Orders    *handler.OrderHandler
	Users     *handler.UserHandler
}

// Server is the HTTP + WebSocket API server for the trading venue.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limit, auth) wired up. The rate
// limiter may be nil, which disables rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Admin(cfg.AdminAPIKeys, h)
	}

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.Handle("POST /api/markets", admin(handlers.Markets.CreateMarket(cfg.DefaultFeeRate)))
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Trades.Quote)
	mux.HandleFunc("GET /api/markets/{id}/orderbook", handlers.Book.GetOrderBook)

	// Trading endpoints.
	mux.HandleFunc("POST /api/markets/{id}/buy", handlers.Trades.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Trades.Sell)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Market administration.
	mux.Handle("POST /api/markets/{id}/liquidity", admin(handlers.Liquidity.Adjust))
	mux.Handle("POST /api/markets/{id}/resolve", admin(handlers.Resolve.Resolve))

	// User endpoints.
	mux.HandleFunc("POST /api/users", handlers.Users.CreateUser)
	mux.HandleFunc("GET /api/users/{id}/balance", handlers.Users.GetBalance)
	mux.HandleFunc("GET /api/users/{id}/positions", handlers.Users.ListPositions)
	mux.HandleFunc("GET /api/users/{id}/orders", handlers.Users.ListOrders)
	mux.HandleFunc("GET /api/users/{id}/ledger", handlers.Users.ListLedger)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKeys)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
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
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
