package tax_test

import (
	fpmath "SparkLedger/internal/math"
	"SparkLedger/internal/tax"
	"testing"
)

// ============================================================================
// Test: Rate
// ============================================================================

func TestRate_Brackets(t *testing.T) {
	table := tax.DefaultTable()

	tests := []struct {
		balance int64
		want    fpmath.Bps
	}{
		{-50, 0},
		{0, 0},
		{19, 0},
		{20, 500},
		{49, 500},
		{50, 1000},
		{99, 1000},
		{100, 1500},
		{249, 1500},
		{250, 2000},
		{499, 2000},
		{500, 2500},
		{1_000_000, 2500},
	}

	for _, tt := range tests {
		if got := table.Rate(tt.balance); got != tt.want {
			t.Errorf("Rate(%d): got %d, want %d", tt.balance, got, tt.want)
		}
	}
}

func TestRate_Monotonic(t *testing.T) {
	table := tax.DefaultTable()
	prev := table.Rate(-10)
	for b := int64(-9); b <= 1000; b++ {
		r := table.Rate(b)
		if r < prev {
			t.Fatalf("rate decreased at balance %d: %d < %d", b, r, prev)
		}
		prev = r
	}
}

// ============================================================================
// Test: Calculate
// ============================================================================

func TestCalculate_FloorsTax(t *testing.T) {
	table := tax.DefaultTable()

	res := table.Calculate(10, 100) // 15% of 10 = 1.5
	if res.Tax != 1 {
		t.Errorf("tax: got %d, want 1", res.Tax)
	}
	if res.Net != 9 {
		t.Errorf("net: got %d, want 9", res.Net)
	}
	if res.Rate != 1500 {
		t.Errorf("rate: got %d, want 1500", res.Rate)
	}
}

func TestCalculate_Conservation(t *testing.T) {
	table := tax.DefaultTable()
	for _, balance := range []int64{-5, 0, 25, 75, 150, 300, 800} {
		for gross := int64(1); gross <= 200; gross++ {
			res := table.Calculate(gross, balance)
			if res.Net+res.Tax != gross {
				t.Fatalf("balance=%d gross=%d: net %d + tax %d != gross", balance, gross, res.Net, res.Tax)
			}
			if res.Tax < 0 || res.Net < 0 {
				t.Fatalf("balance=%d gross=%d: negative component %+v", balance, gross, res)
			}
		}
	}
}

func TestCalculate_NonPositiveGross(t *testing.T) {
	table := tax.DefaultTable()
	res := table.Calculate(0, 600)
	if res.Net != 0 || res.Tax != 0 {
		t.Errorf("got net=%d tax=%d, want 0/0", res.Net, res.Tax)
	}
}

// ============================================================================
// Test: Validate
// ============================================================================

func TestNewTable_RejectsBadSchedules(t *testing.T) {
	tests := []struct {
		name     string
		brackets []tax.Bracket
	}{
		{"empty", nil},
		{"not from zero", []tax.Bracket{{Min: 1, Max: tax.Unbounded, Rate: 0}}},
		{"gap", []tax.Bracket{{Min: 0, Max: 9, Rate: 0}, {Min: 11, Max: tax.Unbounded, Rate: 100}}},
		{"bounded top", []tax.Bracket{{Min: 0, Max: 9, Rate: 0}, {Min: 10, Max: 99, Rate: 100}}},
		{"decreasing", []tax.Bracket{{Min: 0, Max: 9, Rate: 500}, {Min: 10, Max: tax.Unbounded, Rate: 100}}},
		{"over 100%", []tax.Bracket{{Min: 0, Max: tax.Unbounded, Rate: 10_001}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tax.NewTable(tt.brackets); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTable_BracketsReturnsCopy(t *testing.T) {
	tbl := tax.DefaultTable()
	got := tbl.Brackets()
	if len(got) != len(tax.DefaultBrackets()) {
		t.Fatalf("brackets: got %d, want %d", len(got), len(tax.DefaultBrackets()))
	}
	got[0].Rate = 9_999
	if tbl.Brackets()[0].Rate != 0 {
		t.Error("mutating the returned slice changed the table")
	}
}
