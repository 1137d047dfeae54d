package treasury

import (
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	fpmath "SparkLedger/internal/math"
	"fmt"
)

// Config holds redistribution tuning.
type Config struct {
	BaseUBI           int64      `json:"base_ubi" toml:"base_ubi" yaml:"base_ubi"`
	WealthThreshold   int64      `json:"wealth_threshold" toml:"wealth_threshold" yaml:"wealth_threshold"`
	WealthRate        fpmath.Bps `json:"wealth_rate_bps" toml:"wealth_rate_bps" yaml:"wealth_rate_bps"`
	MaintenanceCost   int64      `json:"maintenance_cost" toml:"maintenance_cost" yaml:"maintenance_cost"`
	MaxMissedPayments int        `json:"max_missed_payments" toml:"max_missed_payments" yaml:"max_missed_payments"`
}

// DefaultConfig returns the stock treasury constants.
func DefaultConfig() Config {
	return Config{
		BaseUBI:           5,
		WealthThreshold:   500,
		WealthRate:        200,
		MaintenanceCost:   1,
		MaxMissedPayments: 2,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.BaseUBI < 0 {
		return fmt.Errorf("base UBI must be non-negative, got %d", c.BaseUBI)
	}
	if c.WealthThreshold < 0 {
		return fmt.Errorf("wealth threshold must be non-negative, got %d", c.WealthThreshold)
	}
	if c.WealthRate < 0 || int64(c.WealthRate) > fpmath.BpsScale {
		return fmt.Errorf("wealth rate out of range: %d bps", c.WealthRate)
	}
	if c.MaintenanceCost < 0 {
		return fmt.Errorf("maintenance cost must be non-negative, got %d", c.MaintenanceCost)
	}
	if c.MaxMissedPayments < 1 {
		return fmt.Errorf("max missed payments must be at least 1, got %d", c.MaxMissedPayments)
	}
	return nil
}

// Treasury redistributes TREASURY funds and runs the periodic economy tick.
// It holds configuration only; all state lives on the ledger.
type Treasury struct {
	cfg    Config
	market *market.Market
}

func New(cfg Config, m *market.Market) *Treasury {
	return &Treasury{cfg: cfg, market: m}
}

// Config returns the treasury settings.
func (t *Treasury) Config() Config {
	return t.cfg
}

// Info summarizes treasury flows. Totals are derived from the transaction
// log on every call; nothing is cached.
type Info struct {
	Balance               int64 `json:"balance"`
	TotalTaxCollected     int64 `json:"total_tax_collected"` // Income tax plus wealth tax
	IncomeTaxCollected    int64 `json:"income_tax_collected"`
	WealthTaxCollected    int64 `json:"wealth_tax_collected"`
	TotalUBIDistributed   int64 `json:"total_ubi_distributed"`
	TaxTransactions       int   `json:"tax_transactions"`
	WealthTaxTransactions int   `json:"wealth_tax_transactions"`
	UBITransactions       int   `json:"ubi_transactions"`
}

// TreasuryInfo scans the log for treasury flows.
func (t *Treasury) TreasuryInfo(l *ledger.Ledger) Info {
	info := Info{Balance: l.Balance(ledger.TreasuryAccount)}
	for i := range l.Transactions {
		tx := &l.Transactions[i]
		switch tx.Type {
		case ledger.TxTypeTax:
			info.IncomeTaxCollected += tx.Amount
			info.TaxTransactions++
		case ledger.TxTypeWealthTax:
			info.WealthTaxCollected += tx.Amount
			info.WealthTaxTransactions++
		case ledger.TxTypeUBI:
			info.TotalUBIDistributed += tx.Amount
			info.UBITransactions++
		}
	}
	info.TotalTaxCollected = info.IncomeTaxCollected + info.WealthTaxCollected
	return info
}
