package tax

import (
	fpmath "SparkLedger/internal/math"
	"fmt"
)

// Unbounded marks the open upper end of the top bracket.
const Unbounded int64 = -1

// Bracket is an inclusive balance range and its rate.
type Bracket struct {
	Min  int64      `json:"min" toml:"min" yaml:"min"`
	Max  int64      `json:"max" toml:"max" yaml:"max"` // Unbounded for the top bracket
	Rate fpmath.Bps `json:"rate_bps" toml:"rate_bps" yaml:"rate_bps"`
}

func (b Bracket) contains(balance int64) bool {
	return balance >= b.Min && (b.Max == Unbounded || balance <= b.Max)
}

// Result is the outcome of taxing a gross amount.
type Result struct {
	Gross int64
	Net   int64
	Tax   int64
	Rate  fpmath.Bps
}

// Table is an ordered list of contiguous brackets over pre-earn balance.
type Table struct {
	brackets []Bracket
}

// DefaultBrackets returns the stock progressive schedule.
func DefaultBrackets() []Bracket {
	return []Bracket{
		{Min: 0, Max: 19, Rate: 0},
		{Min: 20, Max: 49, Rate: 500},
		{Min: 50, Max: 99, Rate: 1000},
		{Min: 100, Max: 249, Rate: 1500},
		{Min: 250, Max: 499, Rate: 2000},
		{Min: 500, Max: Unbounded, Rate: 2500},
	}
}

// NewTable validates and wraps a bracket list.
func NewTable(brackets []Bracket) (Table, error) {
	t := Table{brackets: append([]Bracket(nil), brackets...)}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// DefaultTable returns the stock schedule.
func DefaultTable() Table {
	t, err := NewTable(DefaultBrackets())
	if err != nil {
		panic(fmt.Sprintf("FATAL: default tax table invalid: %v", err))
	}
	return t
}

// Validate checks the brackets start at 0, are contiguous, have non-decreasing
// rates in [0, 100%], and end unbounded.
func (t Table) Validate() error {
	if len(t.brackets) == 0 {
		return fmt.Errorf("tax table is empty")
	}
	if t.brackets[0].Min != 0 {
		return fmt.Errorf("first bracket must start at 0, got %d", t.brackets[0].Min)
	}

	for i, b := range t.brackets {
		if b.Rate < 0 || int64(b.Rate) > fpmath.BpsScale {
			return fmt.Errorf("bracket %d rate out of range: %d bps", i, b.Rate)
		}
		last := i == len(t.brackets)-1
		if last {
			if b.Max != Unbounded {
				return fmt.Errorf("last bracket must be unbounded, got max=%d", b.Max)
			}
			continue
		}
		if b.Max == Unbounded || b.Max < b.Min {
			return fmt.Errorf("bracket %d has invalid range [%d, %d]", i, b.Min, b.Max)
		}
		next := t.brackets[i+1]
		if next.Min != b.Max+1 {
			return fmt.Errorf("bracket %d ends at %d but bracket %d starts at %d", i, b.Max, i+1, next.Min)
		}
		if next.Rate < b.Rate {
			return fmt.Errorf("bracket %d rate %d bps is below bracket %d rate %d bps", i+1, next.Rate, i, b.Rate)
		}
	}

	return nil
}

// Rate returns the bracket rate for a balance. Negative balances fall in the
// lowest bracket.
func (t Table) Rate(balance int64) fpmath.Bps {
	if len(t.brackets) == 0 {
		return 0
	}
	if balance < 0 {
		return t.brackets[0].Rate
	}
	for _, b := range t.brackets {
		if b.contains(balance) {
			return b.Rate
		}
	}
	return 0
}

// Calculate taxes a gross amount given the account's pre-earn balance.
// Tax is floored; net + tax == gross.
func (t Table) Calculate(gross, balance int64) Result {
	rate := t.Rate(balance)
	if gross <= 0 {
		return Result{Gross: gross, Rate: rate}
	}
	taxAmount := fpmath.MulBps(gross, rate, fpmath.RoundDown)
	return Result{
		Gross: gross,
		Net:   gross - taxAmount,
		Tax:   taxAmount,
		Rate:  rate,
	}
}

// Brackets returns a copy of the schedule.
func (t Table) Brackets() []Bracket {
	return append([]Bracket(nil), t.brackets...)
}
