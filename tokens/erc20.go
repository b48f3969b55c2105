package tokens

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

const erc20ABI = `[
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ContractCaller is the subset of the Ethereum RPC client used for metadata
// reads. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Fetcher resolves token metadata with eth_call reads against the token
// contract. It is only consulted on registry misses.
type ERC20Fetcher struct {
	client ContractCaller
	abi    abi.ABI
}

// NewERC20Fetcher constructs a fetcher from an Ethereum client.
func NewERC20Fetcher(client ContractCaller) (*ERC20Fetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20Fetcher{client: client, abi: parsed}, nil
}

// Fetch reads symbol, name and decimals from the token contract.
func (f *ERC20Fetcher) Fetch(ctx context.Context, address common.Address) (vault.TokenMetadata, error) {
	if f == nil || f.client == nil {
		return vault.TokenMetadata{}, fmt.Errorf("tokens: fetcher not initialised")
	}
	symbol, err := f.callString(ctx, address, "symbol")
	if err != nil {
		return vault.TokenMetadata{}, fmt.Errorf("fetch symbol for %s: %w", address.Hex(), err)
	}
	name, err := f.callString(ctx, address, "name")
	if err != nil {
		return vault.TokenMetadata{}, fmt.Errorf("fetch name for %s: %w", address.Hex(), err)
	}
	decimals, err := f.callDecimals(ctx, address)
	if err != nil {
		return vault.TokenMetadata{}, fmt.Errorf("fetch decimals for %s: %w", address.Hex(), err)
	}
	return vault.TokenMetadata{Address: address, Symbol: symbol, Decimals: decimals, Name: name}, nil
}

func (f *ERC20Fetcher) call(ctx context.Context, address common.Address, method string) ([]interface{}, error) {
	input, err := f.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	output, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	return f.abi.Unpack(method, output)
}

func (f *ERC20Fetcher) callString(ctx context.Context, address common.Address, method string) (string, error) {
	values, err := f.call(ctx, address, method)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("unexpected %s output arity %d", method, len(values))
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s output type %T", method, values[0])
	}
	return strings.TrimSpace(value), nil
}

func (f *ERC20Fetcher) callDecimals(ctx context.Context, address common.Address) (uint8, error) {
	values, err := f.call(ctx, address, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected decimals output arity %d", len(values))
	}
	value, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output type %T", values[0])
	}
	return value, nil
}
