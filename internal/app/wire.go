package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miko-labs/futurify/internal/access"
	s3blob "github.com/miko-labs/futurify/internal/blob/s3"
	"github.com/miko-labs/futurify/internal/cache/redis"
	"github.com/miko-labs/futurify/internal/config"
	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/engine"
	"github.com/miko-labs/futurify/internal/fhe"
	"github.com/miko-labs/futurify/internal/gateway"
	"github.com/miko-labs/futurify/internal/ledger"
	"github.com/miko-labs/futurify/internal/notify"
	"github.com/miko-labs/futurify/internal/registry"
	"github.com/miko-labs/futurify/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Confidential core.
	Engine  *engine.Engine
	Gateway *gateway.Gateway

	// Stores (nil outside archive/full mode).
	PredictionStore domain.PredictionStore
	GrantStore      domain.GrantStore

	// Redis-backed components.
	PredictionCache domain.PredictionCache
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager
	SignalBus       domain.SignalBus

	// Blob storage (nil unless archival is wired).
	BlobWriter domain.BlobWriter

	// Notifications.
	Notifier      *notify.Notifier
	NotifyEnabled bool
}

// needsPostgres returns true for modes that require the durable mirror.
func needsPostgres(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Confidential engine core ---
	inputKey, err := cfg.Engine.InputKey()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine input key: %w", err)
	}
	if inputKey == nil {
		logger.WarnContext(ctx, "wire: no input key configured, sealed inputs will not survive restarts")
	}
	cop, err := fhe.NewCoprocessor(inputKey)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: coprocessor: %w", err)
	}

	acc := access.NewManager()
	deps.Engine = engine.New(cop, ledger.New(cop), registry.New(cop), acc, cfg.Engine.DenominationFactor, logger)
	deps.Gateway = gateway.New(acc, cop, logger)

	// --- PostgreSQL mirror (only for modes that archive) ---
	if needsPostgres(cfg.Mode) {
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
		deps.PredictionStore = postgres.NewPredictionStore(pool)
		deps.GrantStore = postgres.NewGrantStore(pool)
		deps.Engine.WithMirror(deps.PredictionStore, deps.GrantStore)
	}

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

	deps.PredictionCache = redis.NewPredictionCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Engine.WithBus(deps.SignalBus)

	// --- S3 blob storage (only when archival is wired) ---
	if cfg.Archive.Enabled || cfg.Mode == "archive" {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
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
	deps.NotifyEnabled = len(senders) > 0

	return deps, cleanup, nil
}
