package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/archive"
	s3blob "github.com/poolwise/poolmarket/internal/blob/s3"
	"github.com/poolwise/poolmarket/internal/cache/redis"
	"github.com/poolwise/poolmarket/internal/config"
	"github.com/poolwise/poolmarket/internal/crypto"
	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/notify"
	"github.com/poolwise/poolmarket/internal/server/handler"
	"github.com/poolwise/poolmarket/internal/store/memory"
	"github.com/poolwise/poolmarket/internal/store/postgres"
	"github.com/poolwise/poolmarket/internal/treasury/evm"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Ledger   domain.LedgerStore
	Admin    domain.AdminStore
	Accounts domain.AccountStore

	// Coordination and caching. MarketCache, SignalBus and RateLimiter are
	// nil in memory mode; LockManager is always set.
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Treasury bridge; nil when no EVM RPC endpoint is configured.
	Bridge *evm.Bridge

	// Archiver exports settled markets to object storage; nil unless the
	// archive job is enabled.
	Archiver *archive.Archiver

	// Pingers feed the health endpoint's per-backend checks.
	Pingers map[string]handler.Pinger

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]handler.Pinger),
	}

	// The archiver reads settled markets straight from whichever ledger
	// store the mode wires in.
	var archiveStore s3blob.LedgerArchiveStore

	switch strings.ToLower(cfg.Mode) {
	case "memory":
		store := memory.New(domain.Params{
			FeeBps: cfg.Ledger.FeeBps,
			MinBet: cfg.Ledger.MinBet,
			MaxBet: cfg.Ledger.MaxBet,
		})
		deps.Ledger = store
		deps.Admin = store
		deps.Accounts = store
		deps.LockManager = memory.NewLockManager()
		archiveStore = store

	default: // serve
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		ledgerStore := postgres.NewLedgerStore(pool)
		deps.Ledger = ledgerStore
		deps.Admin = postgres.NewAdminStore(pool)
		deps.Accounts = postgres.NewAccountStore(pool)
		deps.Pingers["postgres"] = pgClient
		archiveStore = ledgerStore

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

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Pingers["redis"] = redisClient
	}

	// The owner can always resolve markets; idempotent across restarts.
	owner := cfg.Ledger.OwnerAddress()
	if err := deps.Admin.SetResolver(ctx, owner, true); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: authorize owner as resolver: %w", err)
	}

	// --- Treasury bridge (optional) ---
	if cfg.EVM.RPCURL != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: custody key: %w", err)
		}

		bridge, err := evm.New(ctx, evm.Config{
			RPCURL:        cfg.EVM.RPCURL,
			ChainID:       cfg.EVM.ChainID,
			Token:         common.HexToAddress(cfg.EVM.TokenAddress),
			TokenDecimals: cfg.EVM.TokenDecimals,
		}, key, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: evm bridge: %w", err)
		}
		closers = append(closers, bridge.Close)
		deps.Bridge = bridge
	}

	// --- S3 archive (optional) ---
	if cfg.Archive.Enabled {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		impl := s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			archiveStore,
			cfg.Archive.Prefix,
		)
		deps.Archiver = archive.NewArchiver(
			impl,
			cfg.Archive.Interval.Duration,
			cfg.Archive.MinAge.Duration,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
