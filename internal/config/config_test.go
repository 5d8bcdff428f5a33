package config

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func f(v float64) *float64 { return &v }

func validRules() RulesConfig {
	return RulesConfig{
		OthersThresholdPct:    f(10),
		SelfThresholdPct:      f(5),
		BlacklistThresholdPct: f(-5),
		SafetyCeiling:         f(1.4),
		MaxCommit:             "1000000",
		SnipeBuffer:           duration{3 * time.Second},
		ExpectedDecay:         duration{2 * time.Minute},
		CheckpointsPct:        []float64{2.5},
		SelfAddresses:         []string{"0x1111111111111111111111111111111111111111"},
		Blacklist:             []string{"0x3333333333333333333333333333333333333333"},
	}
}

func TestRulesDomain_Conversion(t *testing.T) {
	r := validRules()
	cfg, err := r.Domain()
	if err != nil {
		t.Fatalf("Domain: %v", err)
	}

	if cfg.OthersThresholdBps != 1000 || cfg.SelfThresholdBps != 500 || cfg.BlacklistThresholdBps != -500 {
		t.Fatalf("thresholds: got %d/%d/%d", cfg.OthersThresholdBps, cfg.SelfThresholdBps, cfg.BlacklistThresholdBps)
	}
	if cfg.MaxCommit.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("max commit: got %s", cfg.MaxCommit)
	}
	if cfg.SnipeBuffer != 3*time.Second {
		t.Fatalf("snipe buffer: got %v", cfg.SnipeBuffer)
	}
	if !cfg.IsSelf(common.HexToAddress("0x1111111111111111111111111111111111111111")) {
		t.Fatal("self address lost in conversion")
	}
	if !cfg.IsBlacklisted(common.HexToAddress("0x3333333333333333333333333333333333333333")) {
		t.Fatal("blacklist address lost in conversion")
	}
}

// Two-decimal percentages must convert exactly; 10.05 sits just below
// 1005 in float64 and truncation would yield 1004.
func TestPctToBps_Rounding(t *testing.T) {
	cases := []struct {
		pct  float64
		want int64
	}{
		{10.05, 1005},
		{-10.05, -1005},
		{2.5, 250},
		{0.07, 7},
		{-5, -500},
		{0, 0},
	}
	for _, tc := range cases {
		if got := pctToBps(tc.pct); got != tc.want {
			t.Fatalf("pctToBps(%g) = %d, want %d", tc.pct, got, tc.want)
		}
	}
}

func TestRulesDomain_CheckpointsCoverThresholds(t *testing.T) {
	r := validRules()
	cfg, err := r.Domain()
	if err != nil {
		t.Fatalf("Domain: %v", err)
	}

	want := map[int64]bool{250: true, 1000: true, 500: true, -500: true}
	for _, cp := range cfg.CheckpointsBps {
		delete(want, cp)
	}
	if len(want) != 0 {
		t.Fatalf("missing checkpoints: %v (got %v)", want, cfg.CheckpointsBps)
	}
}

func TestRulesDomain_MissingParams(t *testing.T) {
	r := validRules()
	r.OthersThresholdPct = nil
	r.MaxCommit = ""

	_, err := r.Domain()
	if err == nil {
		t.Fatal("expected error for missing params")
	}
	if !errors.Is(err, domain.ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
	if !strings.Contains(err.Error(), "others_threshold_pct") || !strings.Contains(err.Error(), "max_commit") {
		t.Fatalf("error should list every missing param: %v", err)
	}
}

func TestRulesDomain_BadAddress(t *testing.T) {
	r := validRules()
	r.Blacklist = append(r.Blacklist, "not-an-address")
	if _, err := r.Domain(); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestValidate_Modes(t *testing.T) {
	cfg := Defaults()
	cfg.Rules = validRules()
	cfg.Chain.RPCURL = "https://rpc.example"
	cfg.Chain.WSURL = "wss://rpc.example"
	cfg.Chain.Contract = "0x2222222222222222222222222222222222222222"

	cfg.Mode = "monitor"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("monitor mode: %v", err)
	}

	// Snipe mode requires a key source.
	cfg.Mode = "snipe"
	if err := cfg.Validate(); err == nil {
		t.Fatal("snipe mode without wallet must fail")
	}
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("snipe mode with wallet: %v", err)
	}

	cfg.Mode = "launch-missiles"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown mode must fail")
	}
}

func TestLoad_TOMLAndEnvOverride(t *testing.T) {
	const body = `
mode = "monitor"
log_level = "debug"

[chain]
rpc_url = "https://rpc.example"
ws_url = "wss://rpc.example"
contract = "0x2222222222222222222222222222222222222222"

[engine]
tick_interval = "100ms"

[rules]
others_threshold_pct = 10.0
self_threshold_pct = 5.0
blacklist_threshold_pct = -5.0
safety_ceiling = 1.4
max_commit = "1000000"
snipe_buffer = "3s"
expected_decay = "2m"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SNIPEBOT_MODE", "snipe")
	t.Setenv("SNIPEBOT_WALLET_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("SNIPEBOT_RULES_SELF_THRESHOLD_PCT", "4.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "snipe" {
		t.Fatalf("env override lost: mode %q", cfg.Mode)
	}
	if cfg.Engine.TickInterval.Duration != 100*time.Millisecond {
		t.Fatalf("tick interval: got %v", cfg.Engine.TickInterval.Duration)
	}
	if cfg.Rules.SelfThresholdPct == nil || *cfg.Rules.SelfThresholdPct != 4.5 {
		t.Fatalf("rule env override lost: %v", cfg.Rules.SelfThresholdPct)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rc, err := cfg.Rules.Domain()
	if err != nil {
		t.Fatalf("Domain: %v", err)
	}
	if rc.SelfThresholdBps != 450 {
		t.Fatalf("self threshold: got %d want 450", rc.SelfThresholdBps)
	}
}
