package positions

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var resolverAddr = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

// fakeCaller answers eth_call with pre-packed ABI outputs.
type fakeCaller struct {
	t       *testing.T
	outputs map[string][]byte
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	require.Equal(f.t, resolverAddr, *call.To)
	for selector, output := range f.outputs {
		if string(call.Data[:4]) == selector {
			return output, nil
		}
	}
	return nil, errors.New("unexpected call")
}

func newTestResolver(t *testing.T) (*Resolver, *fakeCaller) {
	caller := &fakeCaller{t: t, outputs: map[string][]byte{}}
	resolver, err := NewResolver(caller, resolverAddr)
	require.NoError(t, err)
	return resolver, caller
}

func samplePosition() abiPosition {
	return abiPosition{
		NftId:            big.NewInt(42),
		Owner:            common.HexToAddress("0x9999999999999999999999999999999999999999"),
		IsLiquidated:     false,
		IsSupplyPosition: false,
		IsSmartCol:       false,
		IsSmartDebt:      false,
		Tick:             big.NewInt(-12),
		Supply:           big.NewInt(1_000_000),
		Borrow:           big.NewInt(400_000),
	}
}

func sampleVault() abiVault {
	return abiVault{
		Vault:                common.HexToAddress("0xabcdabcdabcdabcdabcdabcdabcdabcdabcdabcd"),
		SupplyToken:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		BorrowToken:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		CollateralFactor:     big.NewInt(7500),
		LiquidationThreshold: big.NewInt(8000),
		LiquidationMaxLimit:  big.NewInt(9000),
		LiquidationPenalty:   big.NewInt(500),
		BorrowFee:            big.NewInt(0),
		OraclePriceOperate:   big.NewInt(1),
		SupplyRate:           big.NewInt(120),
		BorrowRate:           big.NewInt(450),
	}
}

func (f *fakeCaller) stub(resolver *Resolver, method string, values ...interface{}) {
	packed, err := resolver.abi.Methods[method].Outputs.Pack(values...)
	require.NoError(f.t, err)
	f.outputs[string(resolver.abi.Methods[method].ID)] = packed
}

func TestPositionByID(t *testing.T) {
	resolver, caller := newTestResolver(t)
	caller.stub(resolver, "positionByNftId", samplePosition(), sampleVault())

	raw, rawVault, err := resolver.PositionByID(context.Background(), big.NewInt(42))
	require.NoError(t, err)
	require.Equal(t, "42", raw.ID.String())
	require.Equal(t, samplePosition().Owner, raw.Owner)
	require.Equal(t, "-12", raw.Tick.String())
	require.Equal(t, uint64(8000), rawVault.LiquidationThresholdBp)
	require.Equal(t, sampleVault().Vault, rawVault.VaultAddress)
}

func TestPositionByIDNotFound(t *testing.T) {
	resolver, caller := newTestResolver(t)
	empty := samplePosition()
	empty.Owner = common.Address{}
	caller.stub(resolver, "positionByNftId", empty, sampleVault())

	_, _, err := resolver.PositionByID(context.Background(), big.NewInt(42))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPositionsByOwner(t *testing.T) {
	resolver, caller := newTestResolver(t)
	second := samplePosition()
	second.NftId = big.NewInt(43)
	second.IsSupplyPosition = true
	caller.stub(resolver, "positionsByOwner",
		[]abiPosition{samplePosition(), second},
		[]abiVault{sampleVault(), sampleVault()})

	rawPositions, rawVaults, err := resolver.PositionsByOwner(context.Background(), samplePosition().Owner)
	require.NoError(t, err)
	require.Len(t, rawPositions, 2)
	require.Len(t, rawVaults, 2)
	require.True(t, rawPositions[1].IsSupplyOnly)
	require.Equal(t, "43", rawPositions[1].ID.String())
}

func TestPositionByIDNilID(t *testing.T) {
	resolver, _ := newTestResolver(t)
	_, _, err := resolver.PositionByID(context.Background(), nil)
	require.Error(t, err)
}
