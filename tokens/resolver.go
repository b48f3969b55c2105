package tokens

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"vaultscope/vault"
)

// MetadataFetcher resolves token metadata from the chain.
type MetadataFetcher interface {
	Fetch(ctx context.Context, address common.Address) (vault.TokenMetadata, error)
}

// Resolver answers metadata lookups from the static registry first and only
// falls through to an on-chain fetch on a miss, so enumerating many
// positions over shared tokens never doubles network calls.
type Resolver struct {
	registry *Registry
	fetcher  MetadataFetcher
	log      *slog.Logger
}

// NewResolver wires a registry and a fetcher together.
func NewResolver(registry *Registry, fetcher MetadataFetcher, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{registry: registry, fetcher: fetcher, log: log}
}

// Resolve returns metadata for a token address. Registry hits always win and
// are never re-fetched.
func (r *Resolver) Resolve(ctx context.Context, address common.Address) (vault.TokenMetadata, error) {
	if meta, ok := r.registry.Lookup(address); ok {
		return meta, nil
	}
	if r.fetcher == nil {
		return vault.TokenMetadata{}, fmt.Errorf("tokens: no fetcher for unknown token %s", address.Hex())
	}
	r.log.Debug("fetching token metadata", "token", address.Hex())
	meta, err := r.fetcher.Fetch(ctx, address)
	if err != nil {
		return vault.TokenMetadata{}, err
	}
	return meta, nil
}
