// Package config defines the top-level configuration for the snipe bot
// and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// duration wraps time.Duration so TOML files can say "250ms" or "2h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SNIPEBOT_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Engine   EngineConfig   `toml:"engine"`
	Rules    RulesConfig    `toml:"rules"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Replay   ReplayConfig   `toml:"replay"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ReplayConfig points the replay mode at a recorded event log.
type ReplayConfig struct {
	EventsPath string `toml:"events_path"`
}

// WalletConfig holds the signing key credentials.
type WalletConfig struct {
	PrivateKey      string `toml:"private_key"`
	KeyfilePath     string `toml:"keyfile_path"`
	KeyfilePassword string `toml:"keyfile_password"`
}

// ChainConfig holds RPC endpoints and the auction contract address.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	WSURL           string   `toml:"ws_url"`
	Contract        string   `toml:"contract"`
	BaselineTipWei  int64    `toml:"baseline_tip_wei"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// EngineConfig holds decision-loop timing parameters.
type EngineConfig struct {
	TickInterval      duration `toml:"tick_interval"`
	DedupRetention    duration `toml:"dedup_retention"`
	ReconInterval     duration `toml:"recon_interval"`
	ReconToleranceBps int64    `toml:"recon_tolerance_bps"`
}

// RulesConfig holds the rule thresholds. Percent fields are pointers so a
// missing required parameter is distinguishable from an explicit zero:
// thresholds may legitimately be zero or negative.
type RulesConfig struct {
	OthersThresholdPct    *float64  `toml:"others_threshold_pct"`
	SelfThresholdPct      *float64  `toml:"self_threshold_pct"`
	BlacklistThresholdPct *float64  `toml:"blacklist_threshold_pct"`
	SafetyCeiling         *float64  `toml:"safety_ceiling"`
	MaxCommit             string    `toml:"max_commit"`
	SnipeBuffer           duration  `toml:"snipe_buffer"`
	ExpectedDecay         duration  `toml:"expected_decay"`
	CheckpointsPct        []float64 `toml:"checkpoints_pct"`
	SelfAddresses         []string  `toml:"self_addresses"`
	Blacklist             []string  `toml:"blacklist"`

	// ParityBufferPct widens the parity rule's break-even target; zero
	// means snipe at exact parity.
	ParityBufferPct float64 `toml:"parity_buffer_pct"`

	// Optional rules; each registers only when its parameter is set.
	MarketDiscountPct float64 `toml:"market_discount_pct"`
	TimeDecayMinFrac  float64 `toml:"time_decay_min_frac"`
	PredictiveWindow  int     `toml:"predictive_window"`
}

// ParityBufferBps returns the parity buffer in basis points.
func (r *RulesConfig) ParityBufferBps() int64 { return pctToBps(r.ParityBufferPct) }

// MarketDiscountBps returns the market-discount trigger in basis points.
func (r *RulesConfig) MarketDiscountBps() int64 { return pctToBps(r.MarketDiscountPct) }

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

var validModes = map[string]bool{
	"snipe":   true,
	"monitor": true,
	"replay":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration. Rule thresholds have no
// defaults on purpose: a bot that snipes with parameters the operator
// never chose is worse than one that refuses to start.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			BaselineTipWei:  0,
			RefreshInterval: duration{15 * time.Second},
		},
		Engine: EngineConfig{
			TickInterval:      duration{250 * time.Millisecond},
			DedupRetention:    duration{6 * time.Hour},
			ReconInterval:     duration{30 * time.Second},
			ReconToleranceBps: 100,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "snipebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Notify: NotifyConfig{
			Events: []string{"commit", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snipe, monitor, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	mode := strings.ToLower(c.Mode)

	// Wallet is required only when the bot may submit commits.
	if mode == "snipe" {
		if c.Wallet.PrivateKey == "" && c.Wallet.KeyfilePath == "" {
			errs = append(errs, "wallet: either private_key or keyfile_path must be set for mode snipe")
		}
		if c.Wallet.KeyfilePath != "" && c.Wallet.KeyfilePassword == "" {
			errs = append(errs, "wallet: keyfile_password is required when keyfile_path is set")
		}
	}

	if mode == "replay" && strings.TrimSpace(c.Replay.EventsPath) == "" {
		errs = append(errs, "replay: events_path must not be empty for mode replay")
	}

	if mode != "replay" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.WSURL == "" {
			errs = append(errs, "chain: ws_url must not be empty")
		}
		if !common.IsHexAddress(c.Chain.Contract) {
			errs = append(errs, fmt.Sprintf("chain: contract %q is not a valid address", c.Chain.Contract))
		}
	}

	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be positive")
	}

	if _, err := c.Rules.Domain(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Domain converts the TOML-level rule parameters into the engine's rule
// configuration. Percentages become basis points so the hot path never
// touches floating point on amounts.
func (r *RulesConfig) Domain() (domain.RuleConfig, error) {
	var errs []string

	if r.OthersThresholdPct == nil {
		errs = append(errs, "rules: others_threshold_pct is required")
	}
	if r.SelfThresholdPct == nil {
		errs = append(errs, "rules: self_threshold_pct is required")
	}
	if r.BlacklistThresholdPct == nil {
		errs = append(errs, "rules: blacklist_threshold_pct is required")
	}
	if r.SafetyCeiling == nil {
		errs = append(errs, "rules: safety_ceiling is required")
	}

	maxCommit := new(big.Int)
	if strings.TrimSpace(r.MaxCommit) == "" {
		errs = append(errs, "rules: max_commit is required")
	} else if _, ok := maxCommit.SetString(strings.TrimSpace(r.MaxCommit), 10); !ok {
		errs = append(errs, fmt.Sprintf("rules: max_commit %q is not a decimal integer", r.MaxCommit))
	}

	self := make(map[common.Address]bool, len(r.SelfAddresses))
	for _, a := range r.SelfAddresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("rules: self address %q is invalid", a))
			continue
		}
		self[common.HexToAddress(a)] = true
	}
	blacklist := make(map[common.Address]bool, len(r.Blacklist))
	for _, a := range r.Blacklist {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("rules: blacklist address %q is invalid", a))
			continue
		}
		blacklist[common.HexToAddress(a)] = true
	}

	if len(errs) > 0 {
		return domain.RuleConfig{}, fmt.Errorf("%w: %s", domain.ErrMissingParam, strings.Join(errs, "; "))
	}

	checkpoints := make([]int64, 0, len(r.CheckpointsPct)+3)
	seen := make(map[int64]bool)
	appendCp := func(bps int64) {
		if !seen[bps] {
			seen[bps] = true
			checkpoints = append(checkpoints, bps)
		}
	}
	for _, pct := range r.CheckpointsPct {
		appendCp(pctToBps(pct))
	}
	// Checkpoints must at least cover the acting thresholds.
	appendCp(pctToBps(*r.OthersThresholdPct))
	appendCp(pctToBps(*r.SelfThresholdPct))
	appendCp(pctToBps(*r.BlacklistThresholdPct))

	cfg := domain.RuleConfig{
		OthersThresholdBps:    pctToBps(*r.OthersThresholdPct),
		SelfThresholdBps:      pctToBps(*r.SelfThresholdPct),
		BlacklistThresholdBps: pctToBps(*r.BlacklistThresholdPct),
		SnipeBuffer:           r.SnipeBuffer.Duration,
		SafetyCeiling:         *r.SafetyCeiling,
		MaxCommit:             maxCommit,
		ExpectedDecay:         r.ExpectedDecay.Duration,
		CheckpointsBps:        checkpoints,
		SelfAddrs:             self,
		Blacklist:             blacklist,
	}
	if err := cfg.Validate(); err != nil {
		return domain.RuleConfig{}, err
	}
	return cfg, nil
}

// pctToBps converts a percentage (e.g. 10.5) to basis points (1050).
// Rounding half away from zero keeps two-decimal inputs exact despite
// float representation error (10.05 must be 1005, not 1004).
func pctToBps(pct float64) int64 {
	return int64(math.Round(pct * 100))
}
