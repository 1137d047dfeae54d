package config_test

import (
	"SparkLedger/internal/config"
	"SparkLedger/internal/earn"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var earnNone = earn.Details{}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ============================================================================
// Test: Environment
// ============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" || cfg.AdminAddr != ":9091" {
		t.Errorf("listeners: %s %s %s", cfg.HTTPAddr, cfg.GRPCAddr, cfg.AdminAddr)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("tick interval: got %s, want 10s", cfg.TickInterval)
	}
	if cfg.PersistFlushTimeout != 10*time.Millisecond {
		t.Errorf("flush timeout: got %s, want 10ms", cfg.PersistFlushTimeout)
	}
	if !cfg.NATSEnabled {
		t.Error("NATS should be enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SPARK_HTTP_ADDR", ":18080")
	t.Setenv("SPARK_TICK_INTERVAL", "250ms")
	t.Setenv("SPARK_PERSIST_BATCH_SIZE", "7")
	t.Setenv("SPARK_NATS_ENABLED", "false")
	t.Setenv("SPARK_LISTING_MAX_AGE", "2h")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":18080" {
		t.Errorf("http addr: got %s, want :18080", cfg.HTTPAddr)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("tick interval: got %s, want 250ms", cfg.TickInterval)
	}
	if cfg.PersistBatchSize != 7 {
		t.Errorf("batch size: got %d, want 7", cfg.PersistBatchSize)
	}
	if cfg.NATSEnabled {
		t.Error("NATS should be disabled")
	}
	if cfg.ListingMaxAge != 2*time.Hour {
		t.Errorf("listing max age: got %s, want 2h", cfg.ListingMaxAge)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero batch", "SPARK_PERSIST_BATCH_SIZE", "0"},
		{"negative tick", "SPARK_TICK_INTERVAL", "-1s"},
		{"malformed duration", "SPARK_PERSIST_FLUSH_TIMEOUT", "soon"},
		{"malformed int", "SPARK_PERSIST_CHAN_SIZE", "lots"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := config.Load(); err == nil {
				t.Errorf("%s=%s: expected error", tc.key, tc.value)
			}
		})
	}
}

// ============================================================================
// Test: Economy File
// ============================================================================

func TestLoadEconomy_EmptyPathIsDefault(t *testing.T) {
	eco, err := config.LoadEconomy("")
	if err != nil {
		t.Fatalf("LoadEconomy: %v", err)
	}
	if got := eco.Rules.Earn.Calculate("daily_login", earnNone); got != 10 {
		t.Errorf("daily_login: got %d, want 10", got)
	}
	if eco.Treasury.BaseUBI != 5 {
		t.Errorf("base UBI: got %d, want 5", eco.Treasury.BaseUBI)
	}
}

const economyTOML = `
disable_events = true

[[activities]]
name = "daily_login"
min = 20
max = 20

[[activities]]
name = "craft"
min = 10
max = 20
factor = "complexity"

[[tax_brackets]]
min = 0
max = 99
rate_bps = 0

[[tax_brackets]]
min = 100
max = -1
rate_bps = 1000

[treasury]
base_ubi = 8
wealth_rate_bps = 300

[market]
listing_fee_bps = 250
anti_snipe_window_ms = 10000
`

func TestParseEconomy_TOMLOverridesTables(t *testing.T) {
	eco, err := config.LoadEconomy(writeFile(t, "economy.toml", economyTOML))
	if err != nil {
		t.Fatalf("LoadEconomy: %v", err)
	}

	if got := eco.Rules.Earn.Calculate("daily_login", earnNone); got != 20 {
		t.Errorf("daily_login: got %d, want 20", got)
	}
	if _, ok := eco.Rules.Earn.Lookup("say"); ok {
		t.Error("activities replace the catalog, say should be gone")
	}
	if got := eco.Rules.Tax.Rate(150); got != 1000 {
		t.Errorf("rate at 150: got %d, want 1000", got)
	}
	if eco.Rules.Calendar != nil {
		t.Error("events should be disabled")
	}
	if eco.Treasury.BaseUBI != 8 || eco.Treasury.WealthRate != 300 {
		t.Errorf("treasury: got %+v", eco.Treasury)
	}
	if eco.Treasury.WealthThreshold != 500 {
		t.Errorf("unset wealth threshold: got %d, want default 500", eco.Treasury.WealthThreshold)
	}
	if eco.Market.ListingFeeBps != 250 || eco.Market.AntiSnipeWindow != 10*time.Second {
		t.Errorf("market: got %+v", eco.Market)
	}
	if eco.Market.DefaultAuctionDuration != 5*time.Minute {
		t.Errorf("unset auction duration: got %s, want 5m", eco.Market.DefaultAuctionDuration)
	}
}

const economyYAML = `
events:
  - name: miners_day
    activity: harvest
    multiplier_bps: 30000
treasury:
  max_missed_payments: 4
market:
  listing_max_age_ms: 60000
`

func TestParseEconomy_YAML(t *testing.T) {
	eco, err := config.LoadEconomy(writeFile(t, "economy.yml", economyYAML))
	if err != nil {
		t.Fatalf("LoadEconomy: %v", err)
	}

	evt, ok := eco.Rules.Calendar.EventFor(0)
	if !ok || evt.Name != "miners_day" {
		t.Errorf("event for day 0: got %+v, %v", evt, ok)
	}
	if eco.Treasury.MaxMissedPayments != 4 {
		t.Errorf("max missed: got %d, want 4", eco.Treasury.MaxMissedPayments)
	}
	if eco.Market.ListingMaxAge != time.Minute {
		t.Errorf("listing max age: got %s, want 1m", eco.Market.ListingMaxAge)
	}
}

func TestParseEconomy_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		format string
		body   string
		want   string
	}{
		{"unknown toml key", ".toml", "bogus = 1\n", "unknown keys"},
		{"unknown yaml key", ".yaml", "bogus: 1\n", "decode yaml"},
		{"gap in brackets", ".toml", "[[tax_brackets]]\nmin = 10\nmax = -1\nrate_bps = 0\n", "tax_brackets"},
		{"negative ubi", ".yaml", "treasury:\n  base_ubi: -1\n", "treasury"},
		{"fee over 100%", ".toml", "[market]\nlisting_fee_bps = 20000\n", "market"},
		{"unsupported format", ".json", "{}", "unsupported"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.ParseEconomy([]byte(tc.body), tc.format)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("got %q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestEconomy_ApplyListingMaxAge(t *testing.T) {
	eco := config.DefaultEconomy().Apply(config.Config{ListingMaxAge: 3 * time.Hour})
	if eco.Market.ListingMaxAge != 3*time.Hour {
		t.Errorf("got %s, want 3h", eco.Market.ListingMaxAge)
	}

	eco = config.DefaultEconomy().Apply(config.Config{})
	if eco.Market.ListingMaxAge != 24*time.Hour {
		t.Errorf("zero override: got %s, want 24h", eco.Market.ListingMaxAge)
	}
}
