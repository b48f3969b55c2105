package positions

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultscope/vault"
)

// resolverABI covers the two read paths of the on-chain position resolver.
// Raw tuples are decoded into tagged structs once, here at the boundary, and
// never passed onward in loose form.
const resolverABI = `[
  {
    "name": "positionByNftId",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "nftId", "type": "uint256"}],
    "outputs": [
      {"name": "position", "type": "tuple", "components": [
        {"name": "nftId", "type": "uint256"},
        {"name": "owner", "type": "address"},
        {"name": "isLiquidated", "type": "bool"},
        {"name": "isSupplyPosition", "type": "bool"},
        {"name": "isSmartCol", "type": "bool"},
        {"name": "isSmartDebt", "type": "bool"},
        {"name": "tick", "type": "int256"},
        {"name": "supply", "type": "uint256"},
        {"name": "borrow", "type": "uint256"}
      ]},
      {"name": "vaultData", "type": "tuple", "components": [
        {"name": "vault", "type": "address"},
        {"name": "supplyToken", "type": "address"},
        {"name": "borrowToken", "type": "address"},
        {"name": "collateralFactor", "type": "uint256"},
        {"name": "liquidationThreshold", "type": "uint256"},
        {"name": "liquidationMaxLimit", "type": "uint256"},
        {"name": "liquidationPenalty", "type": "uint256"},
        {"name": "borrowFee", "type": "uint256"},
        {"name": "oraclePriceOperate", "type": "uint256"},
        {"name": "supplyRate", "type": "int256"},
        {"name": "borrowRate", "type": "int256"}
      ]}
    ]
  },
  {
    "name": "positionsByOwner",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "owner", "type": "address"}],
    "outputs": [
      {"name": "positions", "type": "tuple[]", "components": [
        {"name": "nftId", "type": "uint256"},
        {"name": "owner", "type": "address"},
        {"name": "isLiquidated", "type": "bool"},
        {"name": "isSupplyPosition", "type": "bool"},
        {"name": "isSmartCol", "type": "bool"},
        {"name": "isSmartDebt", "type": "bool"},
        {"name": "tick", "type": "int256"},
        {"name": "supply", "type": "uint256"},
        {"name": "borrow", "type": "uint256"}
      ]},
      {"name": "vaults", "type": "tuple[]", "components": [
        {"name": "vault", "type": "address"},
        {"name": "supplyToken", "type": "address"},
        {"name": "borrowToken", "type": "address"},
        {"name": "collateralFactor", "type": "uint256"},
        {"name": "liquidationThreshold", "type": "uint256"},
        {"name": "liquidationMaxLimit", "type": "uint256"},
        {"name": "liquidationPenalty", "type": "uint256"},
        {"name": "borrowFee", "type": "uint256"},
        {"name": "oraclePriceOperate", "type": "uint256"},
        {"name": "supplyRate", "type": "int256"},
        {"name": "borrowRate", "type": "int256"}
      ]}
    ]
  }
]`

type abiPosition struct {
	NftId            *big.Int
	Owner            common.Address
	IsLiquidated     bool
	IsSupplyPosition bool
	IsSmartCol       bool
	IsSmartDebt      bool
	Tick             *big.Int
	Supply           *big.Int
	Borrow           *big.Int
}

type abiVault struct {
	Vault                common.Address
	SupplyToken          common.Address
	BorrowToken          common.Address
	CollateralFactor     *big.Int
	LiquidationThreshold *big.Int
	LiquidationMaxLimit  *big.Int
	LiquidationPenalty   *big.Int
	BorrowFee            *big.Int
	OraclePriceOperate   *big.Int
	SupplyRate           *big.Int
	BorrowRate           *big.Int
}

// ContractCaller is the subset of the Ethereum RPC client the resolver needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver reads positions from the on-chain resolver contract.
type Resolver struct {
	client   ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewResolver constructs a resolver adapter for the given contract.
func NewResolver(client ContractCaller, contract common.Address) (*Resolver, error) {
	parsed, err := abi.JSON(strings.NewReader(resolverABI))
	if err != nil {
		return nil, fmt.Errorf("parse resolver abi: %w", err)
	}
	return &Resolver{client: client, contract: contract, abi: parsed}, nil
}

// PositionByID implements Source.
func (r *Resolver) PositionByID(ctx context.Context, id *big.Int) (vault.RawPosition, vault.RawVault, error) {
	if id == nil {
		return vault.RawPosition{}, vault.RawVault{}, fmt.Errorf("positions: nil id")
	}
	var out struct {
		Position  abiPosition
		VaultData abiVault
	}
	if err := r.call(ctx, "positionByNftId", &out, id); err != nil {
		return vault.RawPosition{}, vault.RawVault{}, err
	}
	if out.Position.Owner == (common.Address{}) {
		return vault.RawPosition{}, vault.RawVault{}, fmt.Errorf("%w: position %s", ErrNotFound, id)
	}
	return toRawPosition(out.Position), toRawVault(out.VaultData), nil
}

// PositionsByOwner implements Source.
func (r *Resolver) PositionsByOwner(ctx context.Context, owner common.Address) ([]vault.RawPosition, []vault.RawVault, error) {
	var out struct {
		Positions []abiPosition
		Vaults    []abiVault
	}
	if err := r.call(ctx, "positionsByOwner", &out, owner); err != nil {
		return nil, nil, err
	}
	if len(out.Positions) != len(out.Vaults) {
		return nil, nil, fmt.Errorf("positions: resolver returned %d positions but %d vaults", len(out.Positions), len(out.Vaults))
	}
	rawPositions := make([]vault.RawPosition, len(out.Positions))
	rawVaults := make([]vault.RawVault, len(out.Vaults))
	for i := range out.Positions {
		rawPositions[i] = toRawPosition(out.Positions[i])
		rawVaults[i] = toRawVault(out.Vaults[i])
	}
	return rawPositions, rawVaults, nil
}

func (r *Resolver) call(ctx context.Context, method string, result interface{}, args ...interface{}) error {
	input, err := r.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := r.abi.UnpackIntoInterface(result, method, output); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func toRawPosition(p abiPosition) vault.RawPosition {
	return vault.RawPosition{
		ID:                p.NftId,
		Owner:             p.Owner,
		IsLiquidated:      p.IsLiquidated,
		IsSupplyOnly:      p.IsSupplyPosition,
		IsSmartCollateral: p.IsSmartCol,
		IsSmartDebt:       p.IsSmartDebt,
		Tick:              p.Tick,
		SupplyRaw:         p.Supply,
		BorrowRaw:         p.Borrow,
	}
}

func toRawVault(v abiVault) vault.RawVault {
	return vault.RawVault{
		VaultAddress:           v.Vault,
		SupplyTokenAddress:     v.SupplyToken,
		BorrowTokenAddress:     v.BorrowToken,
		CollateralFactorBp:     clampUint64(v.CollateralFactor),
		LiquidationThresholdBp: clampUint64(v.LiquidationThreshold),
		LiquidationMaxLimitBp:  clampUint64(v.LiquidationMaxLimit),
		LiquidationPenaltyBp:   clampUint64(v.LiquidationPenalty),
		BorrowFeeBp:            clampUint64(v.BorrowFee),
		OraclePriceOperate:     v.OraclePriceOperate,
		SupplyRateRaw:          v.SupplyRate,
		BorrowRateRaw:          v.BorrowRate,
	}
}

func clampUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
