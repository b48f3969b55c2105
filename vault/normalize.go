package vault

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Normalize maps a raw position and its vault configuration into a
// display-ready Position using the resolved metadata of both tokens.
//
// Collateral value is first expressed in debt-token base units through the
// vault's operate oracle price (floor division at ray scale, pure integer
// arithmetic) and only then converted to a decimal quantity, so the LTV
// ratio never sees precision loss from large balances.
func Normalize(raw RawPosition, v RawVault, coll, debt TokenMetadata) Position {
	collateralAmount := ToDecimal(raw.SupplyRaw, coll.Decimals)
	debtAmount := ToDecimal(raw.BorrowRaw, debt.Decimals)

	colValueInDebt := decimal.Zero
	if raw.SupplyRaw != nil && v.OraclePriceOperate != nil {
		scaled := new(big.Int).Mul(raw.SupplyRaw, v.OraclePriceOperate)
		scaled.Quo(scaled, rayScale)
		colValueInDebt = ToDecimal(scaled, debt.Decimals)
	}

	ltv := decimal.Zero
	if debtAmount.IsPositive() && colValueInDebt.IsPositive() {
		ltv = debtAmount.Div(colValueInDebt).Mul(oneHundred)
	}

	threshold := decimal.New(int64(v.LiquidationThresholdBp), -2)
	health := HealthFactor(math.Inf(1))
	if ltv.IsPositive() {
		health = HealthFactor(threshold.Div(ltv).InexactFloat64())
	}

	return Position{
		ID:                          raw.ID,
		Owner:                       raw.Owner,
		IsLiquidated:                raw.IsLiquidated,
		VaultAddress:                v.VaultAddress,
		Collateral:                  AssetAmount{Amount: collateralAmount, Symbol: coll.Symbol, Name: coll.Name},
		Debt:                        AssetAmount{Amount: debtAmount, Symbol: debt.Symbol, Name: debt.Name},
		LTVPercent:                  ltv,
		HealthFactor:                health,
		LiquidationThresholdPercent: threshold,
		BorrowAPYPercent:            RateToAPY(v.BorrowRateRaw),
		SupplyAPYPercent:            RateToAPY(v.SupplyRateRaw),
	}
}

// ReportEligible reports whether a position participates in aggregate
// reporting. Liquidated, empty, supply-only and smart-pool positions are
// excluded by policy at the enumeration boundary; normalizing a single
// position requested by id always proceeds regardless.
func ReportEligible(raw RawPosition) bool {
	if raw.IsLiquidated || raw.IsSupplyOnly || raw.IsSmartCollateral || raw.IsSmartDebt {
		return false
	}
	return raw.SupplyRaw != nil && raw.SupplyRaw.Sign() > 0
}
