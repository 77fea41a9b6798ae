package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/yesnolabs/venue/internal/blob/s3"
	"github.com/yesnolabs/venue/internal/cache/redis"
	"github.com/yesnolabs/venue/internal/config"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/store/postgres"
)

// Well-known system account IDs, provisioned at startup and threaded into
// the engine as an explicit SystemAccounts value.
const (
	custodyAccountID   = "sys:custody"
	feeAccountID       = "sys:fee"
	liquidityAccountID = "sys:liquidity"
)

// Dependencies bundles every domain-level dependency the application needs
// to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Transactional store
	TxRunner domain.TxRunner

	// Read stores
	MarketStore   domain.MarketStore
	OrderStore    domain.OrderStore
	PositionStore domain.PositionStore
	AccountStore  domain.AccountStore
	LedgerStore   domain.LedgerStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	BookCache   domain.OrderBookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Audit export (nil when disabled)
	AuditExporter domain.AuditExporter

	// System accounts injected into the engine.
	SystemAccounts domain.SystemAccounts

	// Backends exposed for health checks.
	Postgres *postgres.Client
	Redis    *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.TxRunner = postgres.NewTxRunner(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.AccountStore = postgres.NewAccountStore(pool)
	deps.LedgerStore = postgres.NewLedgerStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.BookCache = redis.NewBookCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 audit export (optional) ---
	if cfg.Audit.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.AuditExporter = s3blob.NewOrderExporter(
			deps.OrderStore,
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			cfg.Audit.Prefix,
			cfg.Audit.BatchSize,
			logger,
		)
	}

	// --- System accounts ---
	sys, err := provisionSystemAccounts(ctx, deps.AccountStore)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SystemAccounts = sys

	return deps, cleanup, nil
}

// provisionSystemAccounts makes sure the three double-entry counterpart
// accounts exist before the engine starts moving money.
func provisionSystemAccounts(ctx context.Context, accounts domain.AccountStore) (domain.SystemAccounts, error) {
	sys := domain.SystemAccounts{
		Custody:   custodyAccountID,
		Fee:       feeAccountID,
		Liquidity: liquidityAccountID,
	}
	for id, name := range map[string]string{
		sys.Custody:   "pool custody",
		sys.Fee:       "fee income",
		sys.Liquidity: "liquidity capital",
	} {
		if _, err := accounts.Ensure(ctx, domain.Account{ID: id, Name: name, System: true}); err != nil {
			return domain.SystemAccounts{}, fmt.Errorf("wire: ensure system account %s: %w", id, err)
		}
	}
	return sys, nil
}
