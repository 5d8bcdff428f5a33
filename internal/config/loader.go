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
// built-in defaults, applies SNIPEBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SNIPEBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyfilePath, "SNIPEBOT_WALLET_KEYFILE_PATH")
	setStr(&cfg.Wallet.KeyfilePassword, "SNIPEBOT_WALLET_KEYFILE_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SNIPEBOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "SNIPEBOT_CHAIN_WS_URL")
	setStr(&cfg.Chain.Contract, "SNIPEBOT_CHAIN_CONTRACT")
	setInt64(&cfg.Chain.BaselineTipWei, "SNIPEBOT_CHAIN_BASELINE_TIP_WEI")
	setDuration(&cfg.Chain.RefreshInterval, "SNIPEBOT_CHAIN_REFRESH_INTERVAL")

	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "SNIPEBOT_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.DedupRetention, "SNIPEBOT_ENGINE_DEDUP_RETENTION")
	setDuration(&cfg.Engine.ReconInterval, "SNIPEBOT_ENGINE_RECON_INTERVAL")
	setInt64(&cfg.Engine.ReconToleranceBps, "SNIPEBOT_ENGINE_RECON_TOLERANCE_BPS")

	// ── Rules ──
	setFloatPtr(&cfg.Rules.OthersThresholdPct, "SNIPEBOT_RULES_OTHERS_THRESHOLD_PCT")
	setFloatPtr(&cfg.Rules.SelfThresholdPct, "SNIPEBOT_RULES_SELF_THRESHOLD_PCT")
	setFloatPtr(&cfg.Rules.BlacklistThresholdPct, "SNIPEBOT_RULES_BLACKLIST_THRESHOLD_PCT")
	setFloatPtr(&cfg.Rules.SafetyCeiling, "SNIPEBOT_RULES_SAFETY_CEILING")
	setStr(&cfg.Rules.MaxCommit, "SNIPEBOT_RULES_MAX_COMMIT")
	setDuration(&cfg.Rules.SnipeBuffer, "SNIPEBOT_RULES_SNIPE_BUFFER")
	setDuration(&cfg.Rules.ExpectedDecay, "SNIPEBOT_RULES_EXPECTED_DECAY")
	setStringSlice(&cfg.Rules.SelfAddresses, "SNIPEBOT_RULES_SELF_ADDRESSES")
	setStringSlice(&cfg.Rules.Blacklist, "SNIPEBOT_RULES_BLACKLIST")
	setFloat64(&cfg.Rules.ParityBufferPct, "SNIPEBOT_RULES_PARITY_BUFFER_PCT")
	setFloat64(&cfg.Rules.MarketDiscountPct, "SNIPEBOT_RULES_MARKET_DISCOUNT_PCT")
	setFloat64(&cfg.Rules.TimeDecayMinFrac, "SNIPEBOT_RULES_TIME_DECAY_MIN_FRAC")
	setInt(&cfg.Rules.PredictiveWindow, "SNIPEBOT_RULES_PREDICTIVE_WINDOW")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SNIPEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SNIPEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SNIPEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SNIPEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SNIPEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SNIPEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SNIPEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SNIPEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SNIPEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SNIPEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SNIPEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SNIPEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SNIPEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNIPEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SNIPEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SNIPEBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPEBOT_NOTIFY_EVENTS")

	// ── Replay ──
	setStr(&cfg.Replay.EventsPath, "SNIPEBOT_REPLAY_EVENTS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPEBOT_MODE")
	setStr(&cfg.LogLevel, "SNIPEBOT_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setFloatPtr(dst **float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
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
