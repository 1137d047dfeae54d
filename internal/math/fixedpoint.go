package math

import (
	"math/big"
	"sync"
)

// BpsScale is the fixed-point scale for rates and multipliers (1 bps = 0.01%).
const BpsScale int64 = 10_000

// Bps is a rate or multiplier expressed in basis points.
// 500 = 5%, 20_000 = x2.
type Bps int64

// Float returns the rate as a fraction (500 -> 0.05). Display only.
func (b Bps) Float() float64 {
	return float64(b) / float64(BpsScale)
}

type RoundingMode int

const (
	RoundDown     RoundingMode = iota // floor, player-favorable for taxes and fees
	RoundHalfUp                       // nearest, ties away from zero
	RoundHalfEven                     // banker's rounding
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding.
// Denominator must be positive. Quotient is floored (Euclidean), so RoundDown
// is floor for negative numerators too.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	// remainder is always in [0, denominator)
	twice := getInt128()
	twice.Lsh(remainder, 1)
	cmp := twice.Cmp(denom)

	switch roundingMode {
	case RoundHalfUp:
		if cmp > 0 || (cmp == 0 && numerator.Sign() >= 0) {
			result++
		}
	case RoundHalfEven:
		if cmp > 0 || (cmp == 0 && result%2 != 0) {
			result++
		}
	}

	putInt128(quotient)
	putInt128(remainder)
	putInt128(twice)

	return result
}

// MulBps computes amount * bps / 10_000 with the given rounding.
func MulBps(amount int64, bps Bps, mode RoundingMode) int64 {
	product := MultiplyInt128(amount, int64(bps))
	result := DivideInt128(product, BpsScale, mode)
	putInt128(product)
	return result
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
