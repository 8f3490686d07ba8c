// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYARB_* environment
// variables and command-line flags.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Chain      ChainConfig      `toml:"chain"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Trade      TradeConfig      `toml:"trade"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds CLOB API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// ChainConfig holds the RPC endpoint and conditional-token contract
// parameters used for on-chain position splits.
type ChainConfig struct {
	RPCURL            string `toml:"rpc_url"`
	CTFAddress        string `toml:"ctf_address"`
	CollateralAddress string `toml:"collateral_address"`
	GasLimit          uint64 `toml:"gas_limit"`
	GasPriceGwei      int64  `toml:"gas_price_gwei"`
	// SplitAmountUnits is the collateral amount per split in base units
	// (1e6 = 1 USDC).
	SplitAmountUnits int64 `toml:"split_amount_units"`
}

// ScannerConfig holds the scan-scheduler parameters.
type ScannerConfig struct {
	Interval duration `toml:"interval"`
	// Cooldown is applied after a detected opportunity (HIT).
	Cooldown duration `toml:"cooldown"`
	// ErrorPenalty is applied after a failed evaluation.
	ErrorPenalty duration `toml:"error_penalty"`
	// Pattern filters markets by slug/title (case-insensitive regex).
	Pattern string `toml:"pattern"`
	DryRun  bool   `toml:"dry_run"`
}

// TradeConfig holds fixed trade sizing. Sizing is deliberately constant,
// not balance- or liquidity-aware.
type TradeConfig struct {
	LongSize  float64 `toml:"long_size"`
	ShortSize float64 `toml:"short_size"`
	// Tick is an offset added to quoted prices before order build.
	Tick float64 `toml:"tick"`
	// OrdersPerSecond bounds batch submission through the rate limiter.
	OrdersPerSecond int `toml:"orders_per_second"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the detection log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls exporting aged detection-log rows to blob storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:       137,
			SignatureType: 2,
		},
		Chain: ChainConfig{
			RPCURL:            "https://polygon-rpc.com",
			CTFAddress:        "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			CollateralAddress: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			GasLimit:          500_000,
			GasPriceGwei:      30,
			SplitAmountUnits:  1_000_000,
		},
		Scanner: ScannerConfig{
			Interval:     duration{3 * time.Second},
			Cooldown:     duration{300 * time.Second},
			ErrorPenalty: duration{30 * time.Second},
		},
		Trade: TradeConfig{
			LongSize:        5,
			ShortSize:       1,
			Tick:            0,
			OrdersPerSecond: 10,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "arb_executed", "settlement_failed", "error"},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":   true,
	"single":  true,
	"once":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// tradingMode reports whether the mode can place orders.
func tradingMode(mode string) bool {
	switch mode {
	case "watch", "single", "once":
		return true
	default:
		return false
	}
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, single, once, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — trading modes need a key unless running dry.
	if tradingMode(strings.ToLower(c.Mode)) && !c.Scanner.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy), or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.CTFAddress == "" {
		errs = append(errs, "chain: ctf_address must not be empty")
	}
	if c.Chain.CollateralAddress == "" {
		errs = append(errs, "chain: collateral_address must not be empty")
	}
	if c.Chain.GasLimit == 0 {
		errs = append(errs, "chain: gas_limit must be > 0")
	}
	if c.Chain.SplitAmountUnits <= 0 {
		errs = append(errs, "chain: split_amount_units must be > 0")
	}

	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.Cooldown.Duration <= 0 {
		errs = append(errs, "scanner: cooldown must be > 0")
	}
	if c.Scanner.Pattern != "" {
		if _, err := regexp.Compile("(?i)" + c.Scanner.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("scanner: invalid pattern: %v", err))
		}
	}

	if c.Trade.LongSize <= 0 {
		errs = append(errs, "trade: long_size must be > 0")
	}
	if c.Trade.ShortSize <= 0 {
		errs = append(errs, "trade: short_size must be > 0")
	}
	if c.Trade.OrdersPerSecond < 1 {
		errs = append(errs, "trade: orders_per_second must be >= 1")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled (the archive reads the detection log)")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
