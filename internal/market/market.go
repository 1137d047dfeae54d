package market

import (
	fpmath "SparkLedger/internal/math"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrSelfTrade    = errors.New("cannot trade with yourself")
	ErrNotSeller    = errors.New("caller is not the seller")
	ErrInactive     = errors.New("not active")
	ErrAuctionEnded = errors.New("auction has ended")
	ErrBidTooLow    = errors.New("bid too low")
	ErrInvalidItem  = errors.New("invalid item")
)

// Listing close kinds
const (
	CloseSold      = "sold"
	CloseCancelled = "cancelled"
	CloseExpired   = "expired"
)

// MaxAuctionDurationMs bounds the requested auction length (30 days).
const MaxAuctionDurationMs int64 = 30 * 24 * 60 * 60 * 1000

// Config holds market tuning.
type Config struct {
	ListingFeeBps          fpmath.Bps    `json:"listing_fee_bps" toml:"listing_fee_bps" yaml:"listing_fee_bps"`
	MinListingFee          int64         `json:"min_listing_fee" toml:"min_listing_fee" yaml:"min_listing_fee"`
	DefaultAuctionDuration time.Duration `json:"default_auction_duration" toml:"-" yaml:"-"`
	AntiSnipeWindow        time.Duration `json:"anti_snipe_window" toml:"-" yaml:"-"`
	ListingMaxAge          time.Duration `json:"listing_max_age" toml:"-" yaml:"-"`
}

// DefaultConfig returns the stock market settings.
func DefaultConfig() Config {
	return Config{
		ListingFeeBps:          500,
		MinListingFee:          1,
		DefaultAuctionDuration: 300_000 * time.Millisecond,
		AntiSnipeWindow:        30_000 * time.Millisecond,
		ListingMaxAge:          24 * time.Hour,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.ListingFeeBps < 0 || int64(c.ListingFeeBps) > fpmath.BpsScale {
		return fmt.Errorf("listing fee out of range: %d bps", c.ListingFeeBps)
	}
	if c.MinListingFee < 0 {
		return fmt.Errorf("min listing fee must be non-negative, got %d", c.MinListingFee)
	}
	if c.DefaultAuctionDuration <= 0 {
		return fmt.Errorf("default auction duration must be positive")
	}
	if c.AntiSnipeWindow < 0 {
		return fmt.Errorf("anti-snipe window must be non-negative")
	}
	if c.ListingMaxAge < 0 {
		return fmt.Errorf("listing max age must be non-negative")
	}
	return nil
}

// Market runs fixed-price listings and timed English auctions against a
// ledger. It holds configuration only; all state lives on the ledger.
// Callers must serialize access to the ledger.
type Market struct {
	cfg Config
}

func New(cfg Config) *Market {
	return &Market{cfg: cfg}
}

// Config returns the market settings.
func (m *Market) Config() Config {
	return m.cfg
}
