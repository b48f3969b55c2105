package positions

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultscope/vault"
)

// ErrNotFound marks a position id or owner address that resolves to nothing.
// Callers surface it distinctly from "zero positions after filtering".
var ErrNotFound = errors.New("positions: not found")

// Source is the read-only query interface over the protocol's position
// resolver.
type Source interface {
	// PositionByID returns one position and its vault configuration.
	PositionByID(ctx context.Context, id *big.Int) (vault.RawPosition, vault.RawVault, error)
	// PositionsByOwner returns every position held by the owner, paired
	// index-for-index with its vault configuration.
	PositionsByOwner(ctx context.Context, owner common.Address) ([]vault.RawPosition, []vault.RawVault, error)
}
