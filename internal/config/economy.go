package config

import (
	"SparkLedger/internal/earn"
	"SparkLedger/internal/events"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	fpmath "SparkLedger/internal/math"
	"SparkLedger/internal/tax"
	"SparkLedger/internal/treasury"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Economy is the resolved tuning the ledger, market and treasury run with.
type Economy struct {
	Rules    ledger.Rules
	Market   market.Config
	Treasury treasury.Config
}

// DefaultEconomy returns the stock tables and constants.
func DefaultEconomy() Economy {
	return Economy{
		Rules:    ledger.DefaultRules(),
		Market:   market.DefaultConfig(),
		Treasury: treasury.DefaultConfig(),
	}
}

// economyFile is the on-disk shape. Absent sections keep the defaults.
type economyFile struct {
	Activities    []earn.Activity `toml:"activities" yaml:"activities"`
	TaxBrackets   []tax.Bracket   `toml:"tax_brackets" yaml:"tax_brackets"`
	Events        []events.Event  `toml:"events" yaml:"events"`
	DisableEvents bool            `toml:"disable_events" yaml:"disable_events"`
	Treasury      treasuryFile    `toml:"treasury" yaml:"treasury"`
	Market        marketFile      `toml:"market" yaml:"market"`
}

type treasuryFile struct {
	BaseUBI           *int64      `toml:"base_ubi" yaml:"base_ubi"`
	WealthThreshold   *int64      `toml:"wealth_threshold" yaml:"wealth_threshold"`
	WealthRateBps     *fpmath.Bps `toml:"wealth_rate_bps" yaml:"wealth_rate_bps"`
	MaintenanceCost   *int64      `toml:"maintenance_cost" yaml:"maintenance_cost"`
	MaxMissedPayments *int        `toml:"max_missed_payments" yaml:"max_missed_payments"`
}

type marketFile struct {
	ListingFeeBps     *fpmath.Bps `toml:"listing_fee_bps" yaml:"listing_fee_bps"`
	MinListingFee     *int64      `toml:"min_listing_fee" yaml:"min_listing_fee"`
	AuctionDurationMs *int64      `toml:"auction_duration_ms" yaml:"auction_duration_ms"`
	AntiSnipeWindowMs *int64      `toml:"anti_snipe_window_ms" yaml:"anti_snipe_window_ms"`
	ListingMaxAgeMs   *int64      `toml:"listing_max_age_ms" yaml:"listing_max_age_ms"`
}

// LoadEconomy reads the economy file. An empty path returns the defaults.
func LoadEconomy(path string) (Economy, error) {
	if path == "" {
		return DefaultEconomy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Economy{}, fmt.Errorf("read economy file: %w", err)
	}
	eco, err := ParseEconomy(raw, filepath.Ext(path))
	if err != nil {
		return Economy{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return eco, nil
}

// ParseEconomy decodes an economy document. format is a file extension:
// .toml, .yaml or .yml. Unknown keys are rejected.
func ParseEconomy(raw []byte, format string) (Economy, error) {
	var f economyFile
	switch strings.ToLower(format) {
	case ".toml":
		md, err := toml.Decode(string(raw), &f)
		if err != nil {
			return Economy{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Economy{}, fmt.Errorf("unknown keys: %v", undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return Economy{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Economy{}, fmt.Errorf("unsupported economy file format %q", format)
	}
	return f.resolve()
}

func (f economyFile) resolve() (Economy, error) {
	eco := DefaultEconomy()

	if len(f.Activities) > 0 {
		table, err := earn.NewTable(f.Activities)
		if err != nil {
			return Economy{}, fmt.Errorf("activities: %w", err)
		}
		eco.Rules.Earn = table
	}
	if len(f.TaxBrackets) > 0 {
		table, err := tax.NewTable(f.TaxBrackets)
		if err != nil {
			return Economy{}, fmt.Errorf("tax_brackets: %w", err)
		}
		eco.Rules.Tax = table
	}
	switch {
	case f.DisableEvents:
		eco.Rules.Calendar = nil
	case len(f.Events) > 0:
		cal, err := events.NewCalendar(f.Events)
		if err != nil {
			return Economy{}, fmt.Errorf("events: %w", err)
		}
		eco.Rules.Calendar = cal
	}

	t := &eco.Treasury
	setInt64(&t.BaseUBI, f.Treasury.BaseUBI)
	setInt64(&t.WealthThreshold, f.Treasury.WealthThreshold)
	if f.Treasury.WealthRateBps != nil {
		t.WealthRate = *f.Treasury.WealthRateBps
	}
	setInt64(&t.MaintenanceCost, f.Treasury.MaintenanceCost)
	if f.Treasury.MaxMissedPayments != nil {
		t.MaxMissedPayments = *f.Treasury.MaxMissedPayments
	}
	if err := t.Validate(); err != nil {
		return Economy{}, fmt.Errorf("treasury: %w", err)
	}

	m := &eco.Market
	if f.Market.ListingFeeBps != nil {
		m.ListingFeeBps = *f.Market.ListingFeeBps
	}
	setInt64(&m.MinListingFee, f.Market.MinListingFee)
	setMillis(&m.DefaultAuctionDuration, f.Market.AuctionDurationMs)
	setMillis(&m.AntiSnipeWindow, f.Market.AntiSnipeWindowMs)
	setMillis(&m.ListingMaxAge, f.Market.ListingMaxAgeMs)
	if err := m.Validate(); err != nil {
		return Economy{}, fmt.Errorf("market: %w", err)
	}

	return eco, nil
}

// Apply layers process overrides on top of the economy file.
func (e Economy) Apply(cfg Config) Economy {
	if cfg.ListingMaxAge > 0 {
		e.Market.ListingMaxAge = cfg.ListingMaxAge
	}
	return e
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, ms *int64) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}
