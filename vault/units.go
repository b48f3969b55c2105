package vault

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Rate scale constants. Vault generations have encoded rates at different
// fixed-point scales; the detection threshold and divisors live here as
// package variables so a future generation can be accommodated without
// touching the conversion logic.
var (
	// rayDetectionThreshold separates ray-encoded rates (1e27 fixed point)
	// from basis-point-like encodings. Magnitudes above 1e18 cannot be a
	// sane basis-point rate.
	rayDetectionThreshold = mustBigInt("1000000000000000000")
	// rayRateDivisor rescales a 1e27 ray rate down to a value with two
	// implied decimal digits.
	rayRateDivisor = decimal.New(1, 23)
	// bpsRateDivisor rescales a basis-point-like rate to a percentage.
	bpsRateDivisor = decimal.New(1, 2)
	// percentDivisor strips the two implied decimal digits left after the
	// ray rescale.
	percentDivisor = decimal.New(1, 2)

	// rayScale is the 1e27 fixed-point unit used by oracle prices.
	rayScale = mustBigInt("1000000000000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// ToDecimal converts a base-unit integer amount into a decimal quantity with
// the supplied number of fractional digits. The conversion is exact: the raw
// integer becomes the coefficient and the decimals become a negative
// exponent, so no binary floating division ever touches the value. A nil
// amount converts to zero and zero decimals is a legal degenerate case.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// RateToAPY converts a raw on-chain rate into an annualized percentage.
// The encoding scale is auto-detected from the magnitude: values beyond the
// ray detection threshold are 1e27-scaled rays, everything else is
// basis-point-like. Sign is preserved for negative (rebate) rates.
func RateToAPY(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	magnitude := new(big.Int).Abs(raw)
	rate := decimal.NewFromBigInt(raw, 0)
	if magnitude.Cmp(rayDetectionThreshold) > 0 {
		return rate.Div(rayRateDivisor).Div(percentDivisor)
	}
	return rate.Div(bpsRateDivisor)
}
