package domain

import (
	sdkmath "cosmossdk.io/math"
)

// BpsDenominator is the fixed basis-point denominator
const BpsDenominator = 10_000

var bpsDenominator = sdkmath.NewInt(BpsDenominator)

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount sdkmath.Int, bps uint32) sdkmath.Int {
	return amount.Mul(sdkmath.NewIntFromUint64(uint64(bps))).Quo(bpsDenominator)
}

// MulDiv returns floor(a * b / c). c must be positive.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	return a.Mul(b).Quo(c)
}

// MulDivUp returns ceil(a * b / c). c must be positive.
func MulDivUp(a, b, c sdkmath.Int) sdkmath.Int {
	product := a.Mul(b)
	q := product.Quo(c)
	if !q.Mul(c).Equal(product) {
		q = q.AddRaw(1)
	}
	return q
}

// CheckBps validates bps against an inclusive ceiling.
func CheckBps(bps, ceiling uint32) error {
	if bps > ceiling {
		return ErrInvalidBps.Wrapf("%d exceeds ceiling %d", bps, ceiling)
	}
	return nil
}

// IsPositive reports whether amount is non-nil and strictly positive.
func IsPositive(amount sdkmath.Int) bool {
	return !amount.IsNil() && amount.IsPositive()
}
