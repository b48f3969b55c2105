package vault

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RawPosition mirrors the position tuple returned by the vault resolver.
// Amount values are denominated in the token's base unit and expressed as big
// integers to match on-chain precision.
type RawPosition struct {
	// ID is the NFT identifier of the position.
	ID *big.Int
	// Owner is the address currently holding the position NFT.
	Owner common.Address
	// IsLiquidated marks positions that have been fully liquidated.
	IsLiquidated bool
	// IsSupplyOnly marks positions with no borrow side.
	IsSupplyOnly bool
	// IsSmartCollateral marks positions collateralised by a smart pool share.
	IsSmartCollateral bool
	// IsSmartDebt marks positions whose debt side is a smart pool share.
	IsSmartDebt bool
	// Tick is the internal price tick the position sits on.
	Tick *big.Int
	// SupplyRaw is the collateral balance in collateral-token base units.
	SupplyRaw *big.Int
	// BorrowRaw is the outstanding debt in debt-token base units.
	BorrowRaw *big.Int
}

// Clone returns a deep copy of the raw position.
func (p RawPosition) Clone() RawPosition {
	clone := p
	if p.ID != nil {
		clone.ID = new(big.Int).Set(p.ID)
	}
	if p.Tick != nil {
		clone.Tick = new(big.Int).Set(p.Tick)
	}
	if p.SupplyRaw != nil {
		clone.SupplyRaw = new(big.Int).Set(p.SupplyRaw)
	}
	if p.BorrowRaw != nil {
		clone.BorrowRaw = new(big.Int).Set(p.BorrowRaw)
	}
	return clone
}

// RawVault mirrors the vault configuration tuple returned by the resolver.
// Basis-point fields are integers scaled one hundred times the display
// percentage.
type RawVault struct {
	// VaultAddress is the vault contract emitting operate events.
	VaultAddress common.Address
	// SupplyTokenAddress is the collateral token contract.
	SupplyTokenAddress common.Address
	// BorrowTokenAddress is the debt token contract.
	BorrowTokenAddress common.Address
	// CollateralFactorBp caps borrowing against collateral, in basis points.
	CollateralFactorBp uint64
	// LiquidationThresholdBp is the LTV where liquidation opens, in basis points.
	LiquidationThresholdBp uint64
	// LiquidationMaxLimitBp is the hard liquidation ceiling, in basis points.
	LiquidationMaxLimitBp uint64
	// LiquidationPenaltyBp is the liquidator discount, in basis points.
	LiquidationPenaltyBp uint64
	// BorrowFeeBp is the protocol borrow fee, in basis points.
	BorrowFeeBp uint64
	// OraclePriceOperate converts collateral base units into debt base units,
	// fixed-point scaled by 1e27.
	OraclePriceOperate *big.Int
	// SupplyRateRaw is the raw supply rate; scale varies by vault generation.
	SupplyRateRaw *big.Int
	// BorrowRateRaw is the raw borrow rate; scale varies by vault generation.
	BorrowRateRaw *big.Int
}

// TokenMetadata describes an ERC-20 token referenced by a vault.
type TokenMetadata struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Name     string         `json:"name"`
}

// AssetAmount couples a decimal quantity with the token it is denominated in.
type AssetAmount struct {
	Amount decimal.Decimal `json:"amount"`
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
}

// HealthFactor is the liquidation threshold divided by the current LTV. It
// marshals as the string "inf" when the position carries no debt, since JSON
// has no encoding for infinity.
type HealthFactor float64

// MarshalJSON implements json.Marshaler.
func (h HealthFactor) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(h), 1) {
		return json.Marshal("inf")
	}
	return []byte(strconv.FormatFloat(float64(h), 'f', -1, 64)), nil
}

// Infinite reports whether the factor denotes a debt-free position.
func (h HealthFactor) Infinite() bool { return math.IsInf(float64(h), 1) }

// Position is the normalized, display-ready view of a raw position.
type Position struct {
	ID                          *big.Int        `json:"id"`
	Owner                       common.Address  `json:"owner"`
	IsLiquidated                bool            `json:"isLiquidated"`
	VaultAddress                common.Address  `json:"vaultAddress"`
	Collateral                  AssetAmount     `json:"collateral"`
	Debt                        AssetAmount     `json:"debt"`
	LTVPercent                  decimal.Decimal `json:"ltvPercent"`
	HealthFactor                HealthFactor    `json:"healthFactor"`
	LiquidationThresholdPercent decimal.Decimal `json:"liquidationThresholdPercent"`
	BorrowAPYPercent            decimal.Decimal `json:"borrowApyPercent"`
	SupplyAPYPercent            decimal.Decimal `json:"supplyApyPercent"`
}

// PriceMap resolves token symbols to USD prices. Symbols absent from the map
// are treated as priced at zero by consumers.
type PriceMap map[string]decimal.Decimal

// USD returns the price for symbol, or zero when unresolved.
func (m PriceMap) USD(symbol string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return m[symbol]
}

// RawLogEntry is a single operate event as returned by the log API, with the
// packed data payload left undecoded.
type RawLogEntry struct {
	VaultAddress   common.Address
	Data           []byte
	BlockTimestamp uint64
	TxHash         common.Hash
}

// RowKind enumerates the four ledger row descriptions.
type RowKind string

const (
	RowDeposit    RowKind = "Deposit"
	RowWithdrawal RowKind = "Withdrawal"
	RowBorrow     RowKind = "Borrow"
	RowRepayment  RowKind = "Repayment"
)

// LedgerRow is one line of the reconstructed transaction history.
type LedgerRow struct {
	// Date is the block timestamp of the emitting transaction.
	Date time.Time `json:"date"`
	// Description classifies the row as Deposit, Withdrawal, Borrow or Repayment.
	Description RowKind `json:"description"`
	// Asset is the symbol of the token the row is denominated in.
	Asset string `json:"asset"`
	// Amount is the signed delta in token units; withdrawals and repayments
	// carry a negative sign.
	Amount decimal.Decimal `json:"amount"`
	// USDValue is the magnitude of the delta valued at the report's price map.
	USDValue decimal.Decimal `json:"usdValue"`
	// TxHash identifies the emitting transaction.
	TxHash common.Hash `json:"transactionHash"`
	// IsCredit is true for rows that reduce principal (withdrawals, repayments).
	IsCredit bool `json:"isCredit"`
}
