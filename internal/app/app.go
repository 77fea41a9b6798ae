// Package app provides the top-level application lifecycle for the trading
// venue. It wires together stores, caches, the engine, the HTTP/WebSocket
// server, and the background jobs, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yesnolabs/venue/internal/book"
	"github.com/yesnolabs/venue/internal/config"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/server"
	"github.com/yesnolabs/venue/internal/server/handler"
	"github.com/yesnolabs/venue/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server, WebSocket hub, and background jobs, and blocks until the context
// is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting venue",
		slog.String("log_level", a.cfg.LogLevel),
	)
	defer a.Close()

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	eng := engine.New(
		deps.TxRunner,
		deps.MarketStore,
		deps.PositionStore,
		deps.SystemAccounts,
		engine.Config{
			WithdrawRatioCap: a.cfg.Engine.WithdrawRatioCap,
			SolvencyFactor:   a.cfg.Engine.SolvencyFactor,
		},
		a.logger,
	).
		WithCaches(deps.PriceCache, deps.BookCache).
		WithSignalBus(deps.SignalBus)

	aggregator := book.NewAggregator(deps.MarketStore, deps.OrderStore, deps.BookCache, a.logger)

	batchPrices, _ := deps.PriceCache.(handler.BatchPriceReader)
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Postgres, deps.Redis, a.logger),
		Markets:   handler.NewMarketHandler(eng, deps.MarketStore, batchPrices, a.logger),
		Trades:    handler.NewTradeHandler(eng, a.logger),
		Book:      handler.NewBookHandler(aggregator, a.logger),
		Liquidity: handler.NewLiquidityHandler(eng, a.logger),
		Resolve:   handler.NewResolveHandler(eng, a.logger),
		Orders:    handler.NewOrderHandler(eng, deps.OrderStore, a.logger),
		Users:     handler.NewUserHandler(deps.AccountStore, deps.PositionStore, deps.OrderStore, deps.LedgerStore, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeys:         a.cfg.Server.APIKeys,
		AdminAPIKeys:    a.cfg.Server.AdminAPIKeys,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
		ReadTimeout:     a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:    a.cfg.Server.WriteTimeout.Duration,
		DefaultFeeRate:  a.cfg.Engine.DefaultFeeRate,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.Sweeper.Enabled {
		g.Go(func() error {
			return a.runSweeper(ctx, eng, deps)
		})
	}

	if a.cfg.Audit.Enabled && deps.AuditExporter != nil {
		g.Go(func() error {
			return a.runAuditExport(ctx, deps)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runSweeper periodically closes expired markets. The distributed lock makes
// the sweep a singleton across venue replicas; losing the lock just skips
// this tick.
func (a *App) runSweeper(ctx context.Context, eng *engine.Engine, deps *Dependencies) error {
	logger := a.logger.With(slog.String("component", "sweeper"))
	interval := a.cfg.Sweeper.Interval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "sweeper started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			unlock, err := deps.LockManager.Acquire(ctx, "lock:sweeper", a.cfg.Sweeper.LockTTL.Duration)
			if err != nil {
				continue
			}
			closed, err := eng.CloseExpired(ctx, a.cfg.Sweeper.Batch)
			unlock()
			if err != nil {
				logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
				continue
			}
			if closed > 0 {
				logger.InfoContext(ctx, "sweep complete", slog.Int("closed", closed))
			}
		}
	}
}

// runAuditExport periodically exports newly filled orders to object storage.
func (a *App) runAuditExport(ctx context.Context, deps *Dependencies) error {
	logger := a.logger.With(slog.String("component", "audit"))
	interval := a.cfg.Audit.Interval.Duration
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "audit exporter started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			unlock, err := deps.LockManager.Acquire(ctx, "lock:audit", interval)
			if err != nil {
				continue
			}
			exported, err := deps.AuditExporter.ExportOrders(ctx)
			unlock()
			if err != nil {
				logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
				continue
			}
			if exported > 0 {
				logger.InfoContext(ctx, "export complete", slog.Int64("orders", exported))
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
