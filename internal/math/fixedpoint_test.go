package math_test

import (
	fpmath "SparkLedger/internal/math"
	"testing"
)

// ============================================================================
// Test: MulBps
// ============================================================================

func TestMulBps(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		bps    fpmath.Bps
		mode   fpmath.RoundingMode
		want   int64
	}{
		{"floor 15% of 10", 10, 1500, fpmath.RoundDown, 1},
		{"floor 25% of 3", 3, 2500, fpmath.RoundDown, 0},
		{"floor 2% of 549", 549, 200, fpmath.RoundDown, 10},
		{"half up 1.5x of 3", 3, 15_000, fpmath.RoundHalfUp, 5},
		{"half up 1.5x of 5", 5, 15_000, fpmath.RoundHalfUp, 8},
		{"half even 1.5x of 5", 5, 15_000, fpmath.RoundHalfEven, 8},
		{"half even 0.5x of 5", 5, 5_000, fpmath.RoundHalfEven, 2},
		{"identity", 42, 10_000, fpmath.RoundDown, 42},
		{"zero amount", 0, 2500, fpmath.RoundHalfUp, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fpmath.MulBps(tt.amount, tt.bps, tt.mode)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMulBps_NoOverflow(t *testing.T) {
	// 2^62 * 2 would overflow int64 if multiplied naively
	amount := int64(1) << 62
	got := fpmath.MulBps(amount, 5_000, fpmath.RoundDown)
	if got != amount/2 {
		t.Errorf("got %d, want %d", got, amount/2)
	}
}

// ============================================================================
// Test: Bps
// ============================================================================

func TestBps_Float(t *testing.T) {
	if got := fpmath.Bps(250).Float(); got != 0.025 {
		t.Errorf("got %v, want 0.025", got)
	}
}
