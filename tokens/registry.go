package tokens

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"vaultscope/vault"
)

// defaultTokens seeds the registry with the tokens every mainnet vault pair
// is built from. Entries here are never re-fetched from the chain.
var defaultTokens = []vault.TokenMetadata{
	{Address: common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"), Symbol: "ETH", Decimals: 18, Name: "Ether"},
	{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18, Name: "Wrapped Ether"},
	{Address: common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"), Symbol: "wstETH", Decimals: 18, Name: "Wrapped liquid staked Ether"},
	{Address: common.HexToAddress("0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee"), Symbol: "weETH", Decimals: 18, Name: "Wrapped eETH"},
	{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	{Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Symbol: "USDT", Decimals: 6, Name: "Tether USD"},
	{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18, Name: "Dai Stablecoin"},
	{Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), Symbol: "WBTC", Decimals: 8, Name: "Wrapped BTC"},
	{Address: common.HexToAddress("0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"), Symbol: "sUSDe", Decimals: 18, Name: "Staked USDe"},
}

// Registry is the process-wide static token metadata table. It is built once
// at startup and read-only afterwards; lookups that hit the table must never
// trigger a network fetch.
type Registry struct {
	entries map[common.Address]vault.TokenMetadata
}

// NewRegistry constructs a registry from the built-in defaults plus any
// caller-supplied entries. Supplied entries override defaults on address
// collision.
func NewRegistry(extra ...vault.TokenMetadata) *Registry {
	entries := make(map[common.Address]vault.TokenMetadata, len(defaultTokens)+len(extra))
	for _, token := range defaultTokens {
		entries[token.Address] = token
	}
	for _, token := range extra {
		entries[token.Address] = token
	}
	return &Registry{entries: entries}
}

// Lookup returns the metadata for address when the table carries it.
func (r *Registry) Lookup(address common.Address) (vault.TokenMetadata, bool) {
	if r == nil {
		return vault.TokenMetadata{}, false
	}
	meta, ok := r.entries[address]
	return meta, ok
}

// Len reports the number of registered tokens.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// LoadSeed reads additional registry entries from a YAML file. An empty path
// yields no entries and no error.
func LoadSeed(path string) ([]vault.TokenMetadata, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token seed: %w", err)
	}
	var seed struct {
		Tokens []struct {
			Address  string `yaml:"address"`
			Symbol   string `yaml:"symbol"`
			Decimals uint8  `yaml:"decimals"`
			Name     string `yaml:"name"`
		} `yaml:"tokens"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse token seed: %w", err)
	}
	entries := make([]vault.TokenMetadata, 0, len(seed.Tokens))
	for _, token := range seed.Tokens {
		if !common.IsHexAddress(token.Address) {
			return nil, fmt.Errorf("token seed: %q is not a hex address", token.Address)
		}
		entries = append(entries, vault.TokenMetadata{
			Address:  common.HexToAddress(token.Address),
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Name:     token.Name,
		})
	}
	return entries, nil
}
