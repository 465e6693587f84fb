package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POOLMARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POOLMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Owner, "POOLMARKET_LEDGER_OWNER")
	setInt64(&cfg.Ledger.FeeBps, "POOLMARKET_LEDGER_FEE_BPS")
	setInt64(&cfg.Ledger.MinBet, "POOLMARKET_LEDGER_MIN_BET")
	setInt64(&cfg.Ledger.MaxBet, "POOLMARKET_LEDGER_MAX_BET")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POOLMARKET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POOLMARKET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POOLMARKET_WALLET_KEY_PASSWORD")

	// ── EVM ──
	setStr(&cfg.EVM.RPCURL, "POOLMARKET_EVM_RPC_URL")
	setInt64(&cfg.EVM.ChainID, "POOLMARKET_EVM_CHAIN_ID")
	setStr(&cfg.EVM.TokenAddress, "POOLMARKET_EVM_TOKEN_ADDRESS")
	setInt(&cfg.EVM.TokenDecimals, "POOLMARKET_EVM_TOKEN_DECIMALS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POOLMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POOLMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POOLMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POOLMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POOLMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POOLMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POOLMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POOLMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POOLMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POOLMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POOLMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POOLMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLMARKET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POOLMARKET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "POOLMARKET_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.MinAge, "POOLMARKET_ARCHIVE_MIN_AGE")
	setStr(&cfg.Archive.Prefix, "POOLMARKET_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POOLMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POOLMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POOLMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POOLMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "POOLMARKET_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POOLMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POOLMARKET_MODE")
	setStr(&cfg.LogLevel, "POOLMARKET_LOG_LEVEL")
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
