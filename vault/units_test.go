package vault

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToDecimalRoundTrip(t *testing.T) {
	cases := []struct {
		raw      string
		decimals uint8
	}{
		{"0", 18},
		{"1", 18},
		{"1000000000000000000", 18},
		{"123456789", 6},
		{"999999999999999999999999999999", 18},
		{"42", 0},
		{"7", 1},
	}
	for _, tc := range cases {
		raw := mustBigInt(tc.raw)
		got := ToDecimal(raw, tc.decimals)
		back := got.Shift(int32(tc.decimals))
		if back.Cmp(decimal.NewFromBigInt(raw, 0)) != 0 {
			t.Fatalf("round trip %s/%d: got %s back as %s", tc.raw, tc.decimals, got, back)
		}
	}
}

func TestToDecimalZeroDecimals(t *testing.T) {
	got := ToDecimal(big.NewInt(42), 0)
	if got.String() != "42" {
		t.Fatalf("expected 42, got %s", got)
	}
}

func TestToDecimalNil(t *testing.T) {
	if !ToDecimal(nil, 18).IsZero() {
		t.Fatal("nil amount must convert to zero")
	}
}

func TestToDecimalLargeBalanceExact(t *testing.T) {
	// A balance large enough to lose precision under float64 division.
	raw := mustBigInt("123456789012345678901234567")
	got := ToDecimal(raw, 18)
	if got.String() != "123456789.012345678901234567" {
		t.Fatalf("unexpected conversion: %s", got)
	}
}

func TestRateToAPYScaleDetection(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"bps-like", "450", "4.5"},
		{"bps-like whole", "1200", "12"},
		{"ray", "45000000000000000000000000", "4.5"}, // 4.5% at 1e27 scale
		{"ray large", "120000000000000000000000000", "12"},
		{"threshold edge stays bps", "1000000000000000000", "10000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RateToAPY(mustBigInt(tc.raw))
			want, _ := decimal.NewFromString(tc.want)
			if got.Cmp(want) != 0 {
				t.Fatalf("RateToAPY(%s) = %s, want %s", tc.raw, got, want)
			}
		})
	}
}

func TestRateToAPYSignPreserving(t *testing.T) {
	magnitudes := []string{"450", "1", "45000000000000000000000000", "999999999999999999999999999"}
	for _, m := range magnitudes {
		pos := RateToAPY(mustBigInt(m))
		neg := RateToAPY(new(big.Int).Neg(mustBigInt(m)))
		if neg.Cmp(pos.Neg()) != 0 {
			t.Fatalf("sign not preserved for %s: %s vs %s", m, pos, neg)
		}
	}
}

func TestRateToAPYNil(t *testing.T) {
	if !RateToAPY(nil).IsZero() {
		t.Fatal("nil rate must convert to zero")
	}
}
