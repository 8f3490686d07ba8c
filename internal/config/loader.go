package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the scanner can
// run entirely from defaults, env vars, and flags. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "POLYARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.FunderAddress, "POLYARB_WALLET_FUNDER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYARB_WALLET_KEY_PASSWORD")

	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYARB_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYARB_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYARB_POLYMARKET_SIGNATURE_TYPE")

	setStr(&cfg.Chain.RPCURL, "POLYARB_CHAIN_RPC_URL")
	setStr(&cfg.Chain.CTFAddress, "POLYARB_CHAIN_CTF_ADDRESS")
	setStr(&cfg.Chain.CollateralAddress, "POLYARB_CHAIN_COLLATERAL_ADDRESS")
	setUint64(&cfg.Chain.GasLimit, "POLYARB_CHAIN_GAS_LIMIT")
	setInt64(&cfg.Chain.GasPriceGwei, "POLYARB_CHAIN_GAS_PRICE_GWEI")
	setInt64(&cfg.Chain.SplitAmountUnits, "POLYARB_CHAIN_SPLIT_AMOUNT_UNITS")

	setDuration(&cfg.Scanner.Interval, "POLYARB_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.Cooldown, "POLYARB_SCANNER_COOLDOWN")
	setDuration(&cfg.Scanner.ErrorPenalty, "POLYARB_SCANNER_ERROR_PENALTY")
	setStr(&cfg.Scanner.Pattern, "POLYARB_SCANNER_PATTERN")
	setBool(&cfg.Scanner.DryRun, "POLYARB_SCANNER_DRY_RUN")

	setFloat64(&cfg.Trade.LongSize, "POLYARB_TRADE_LONG_SIZE")
	setFloat64(&cfg.Trade.ShortSize, "POLYARB_TRADE_SHORT_SIZE")
	setFloat64(&cfg.Trade.Tick, "POLYARB_TRADE_TICK")
	setInt(&cfg.Trade.OrdersPerSecond, "POLYARB_TRADE_ORDERS_PER_SECOND")

	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")

	setBool(&cfg.Postgres.Enabled, "POLYARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "POLYARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POLYARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "POLYARB_ARCHIVE_INTERVAL")

	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")

	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
