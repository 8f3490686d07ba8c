package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/arb"
	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/engine"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/chain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/resolver"
	"github.com/alanyoungcy/polyarb/internal/scanner"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Clob     *polymarket.ClobClient
	Resolver *resolver.Resolver

	Evaluator *arb.Evaluator
	Engine    *engine.Engine
	Scanner   *scanner.Scanner

	// Caches
	MarketCache domain.MarketCache
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter

	// Detection log (nil when postgres is disabled).
	OpportunityStore domain.OpportunityStore

	// Blob storage (nil when the archive is disabled).
	BlobWriter *s3blob.Writer

	Notifier *notify.Notifier
}

// tradingMode reports whether the mode places orders and therefore needs a
// wallet, an API key, and a chain connection.
func tradingMode(mode string) bool {
	switch mode {
	case "watch", "single", "once":
		return true
	default:
		return false
	}
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
	mode := strings.ToLower(cfg.Mode)
	trading := tradingMode(mode) && !cfg.Scanner.DryRun

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

	deps.MarketCache = redis.NewMarketCache(redisClient, 0)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- PostgreSQL detection log ---
	if cfg.Postgres.Enabled {
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

		deps.OpportunityStore = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// --- S3 blob storage (archive only) ---
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
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	// --- Wallet and CLOB client ---
	var signer *crypto.Signer
	if trading {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		signer, err = crypto.NewSigner(keyHex, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
	}

	deps.Clob = polymarket.NewClobClient(
		cfg.Polymarket.ClobHost,
		signer,
		cfg.Polymarket.SignatureType,
		cfg.Wallet.FunderAddress,
	)
	if trading {
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
		}
	}

	deps.Resolver = resolver.New(deps.Clob, deps.MarketCache, logger)
	deps.Evaluator = arb.NewEvaluator(deps.Clob, logger)

	// --- On-chain splitter (SHORT settlement) ---
	var splitter engine.Splitter
	if trading {
		ctf, err := chain.NewCTFClient(chain.Config{
			RPCURL:            cfg.Chain.RPCURL,
			ChainID:           int64(cfg.Polymarket.ChainID),
			CTFAddress:        cfg.Chain.CTFAddress,
			CollateralAddress: cfg.Chain.CollateralAddress,
			GasLimit:          cfg.Chain.GasLimit,
			GasPriceGwei:      cfg.Chain.GasPriceGwei,
			SplitAmountUnits:  cfg.Chain.SplitAmountUnits,
		}, signer, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, ctf.Close)
		splitter = ctf
	}

	deps.Engine = engine.New(deps.Clob, splitter, deps.RateLimiter, deps.Notifier, engine.Config{
		LongSize:        cfg.Trade.LongSize,
		ShortSize:       cfg.Trade.ShortSize,
		Tick:            cfg.Trade.Tick,
		OrdersPerSecond: cfg.Trade.OrdersPerSecond,
	}, logger)

	deps.Scanner = scanner.New(deps.Resolver, deps.Evaluator, deps.Engine, deps.OpportunityStore, scanner.Config{
		Interval:     cfg.Scanner.Interval.Duration,
		Cooldown:     cfg.Scanner.Cooldown.Duration,
		ErrorPenalty: cfg.Scanner.ErrorPenalty.Duration,
		Pattern:      cfg.Scanner.Pattern,
		// Monitor mode never trades regardless of the dry_run flag.
		DryRun: cfg.Scanner.DryRun || !tradingMode(mode),
	}, logger)

	return deps, cleanup, nil
}
