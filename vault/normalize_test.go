package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	testUSDC = TokenMetadata{
		Address:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Symbol:   "USDC",
		Decimals: 6,
		Name:     "USD Coin",
	}
	testWETH = TokenMetadata{
		Address:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Symbol:   "WETH",
		Decimals: 18,
		Name:     "Wrapped Ether",
	}
)

// oracle price converting 1e18 WETH base units into 2000e6 USDC base units:
// price = 2000e6 * 1e27 / 1e18 = 2e18.
func testVault() RawVault {
	return RawVault{
		VaultAddress:           common.HexToAddress("0xabcdabcdabcdabcdabcdabcdabcdabcdabcdabcd"),
		SupplyTokenAddress:     testWETH.Address,
		BorrowTokenAddress:     testUSDC.Address,
		CollateralFactorBp:     7500,
		LiquidationThresholdBp: 8000,
		OraclePriceOperate:     mustBigInt("2000000000000000000"),
		SupplyRateRaw:          big.NewInt(120),
		BorrowRateRaw:          big.NewInt(450),
	}
}

func TestNormalizeComputesLTV(t *testing.T) {
	raw := RawPosition{
		ID:        big.NewInt(77),
		Owner:     common.HexToAddress("0x9999999999999999999999999999999999999999"),
		SupplyRaw: mustBigInt("1000000000000000000"), // 1 WETH
		BorrowRaw: big.NewInt(800_000000),            // 800 USDC
	}
	pos := Normalize(raw, testVault(), testWETH, testUSDC)

	if pos.Collateral.Amount.String() != "1" {
		t.Fatalf("collateral amount = %s", pos.Collateral.Amount)
	}
	if pos.Debt.Amount.String() != "800" {
		t.Fatalf("debt amount = %s", pos.Debt.Amount)
	}
	// 800 debt against 2000 of collateral value = 40% LTV.
	if pos.LTVPercent.Cmp(decimal.NewFromInt(40)) != 0 {
		t.Fatalf("ltv = %s, want 40", pos.LTVPercent)
	}
	// threshold 80% / ltv 40% = 2.0
	if float64(pos.HealthFactor) != 2.0 {
		t.Fatalf("health factor = %v, want 2", pos.HealthFactor)
	}
	if pos.LiquidationThresholdPercent.Cmp(decimal.NewFromInt(80)) != 0 {
		t.Fatalf("threshold = %s", pos.LiquidationThresholdPercent)
	}
	if pos.BorrowAPYPercent.Cmp(decimal.NewFromFloat(4.5)) != 0 {
		t.Fatalf("borrow apy = %s", pos.BorrowAPYPercent)
	}
}

func TestNormalizeZeroDebtInfiniteHealth(t *testing.T) {
	raw := RawPosition{
		ID:        big.NewInt(1),
		SupplyRaw: mustBigInt("1000000000000000000"),
		BorrowRaw: big.NewInt(0),
	}
	pos := Normalize(raw, testVault(), testWETH, testUSDC)
	if !pos.LTVPercent.IsZero() {
		t.Fatalf("ltv = %s, want 0", pos.LTVPercent)
	}
	if !pos.HealthFactor.Infinite() {
		t.Fatalf("health factor = %v, want +Inf", pos.HealthFactor)
	}
}

func TestNormalizeZeroCollateral(t *testing.T) {
	raw := RawPosition{
		ID:        big.NewInt(2),
		SupplyRaw: big.NewInt(0),
		BorrowRaw: big.NewInt(100_000000),
	}
	pos := Normalize(raw, testVault(), testWETH, testUSDC)
	if !pos.LTVPercent.IsZero() {
		t.Fatalf("ltv with zero collateral = %s, want 0", pos.LTVPercent)
	}
	if !pos.HealthFactor.Infinite() {
		t.Fatal("zero ltv must yield infinite health factor")
	}
}

func TestReportEligible(t *testing.T) {
	supply := mustBigInt("5000000")
	cases := []struct {
		name string
		raw  RawPosition
		want bool
	}{
		{"active", RawPosition{SupplyRaw: supply}, true},
		{"liquidated", RawPosition{SupplyRaw: supply, IsLiquidated: true}, false},
		{"supply only", RawPosition{SupplyRaw: supply, IsSupplyOnly: true}, false},
		{"smart collateral", RawPosition{SupplyRaw: supply, IsSmartCollateral: true}, false},
		{"smart debt", RawPosition{SupplyRaw: supply, IsSmartDebt: true}, false},
		{"empty", RawPosition{SupplyRaw: big.NewInt(0)}, false},
		{"nil supply", RawPosition{}, false},
	}
	for _, tc := range cases {
		if got := ReportEligible(tc.raw); got != tc.want {
			t.Fatalf("%s: eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHealthFactorJSON(t *testing.T) {
	inf := HealthFactor(1)
	data, err := inf.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1" {
		t.Fatalf("marshal = %s", data)
	}
	pos := Normalize(RawPosition{SupplyRaw: big.NewInt(1)}, testVault(), testWETH, testUSDC)
	data, err = pos.HealthFactor.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"inf"` {
		t.Fatalf("infinite marshal = %s", data)
	}
}
