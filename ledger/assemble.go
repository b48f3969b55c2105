package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"vaultscope/observability"
	"vaultscope/vault"
)

// OperateTopic is the topic0 signature of the combined collateral/debt
// operate event every vault emits.
var OperateTopic = crypto.Keccak256Hash([]byte("LogOperate(address,uint256,int256,int256,address)"))

// LogSource retrieves all matching logs for one contract address.
type LogSource interface {
	FetchAllLogs(ctx context.Context, address common.Address, topic common.Hash) ([]vault.RawLogEntry, error)
}

// Owned identifies one of the caller's positions together with the token
// metadata of its vault, which denominates the decoded rows.
type Owned struct {
	ID           *big.Int
	VaultAddress common.Address
	Collateral   vault.TokenMetadata
	Debt         vault.TokenMetadata
}

type vaultGroup struct {
	ctx vault.VaultContext
	ids map[string]struct{}
}

// Assembler reconstructs the transaction ledger for a set of owned positions.
type Assembler struct {
	source LogSource
	topic  common.Hash
	log    *slog.Logger
}

// NewAssembler wires a log source into an assembler listening for operate
// events.
func NewAssembler(source LogSource, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{source: source, topic: OperateTopic, log: log}
}

// Assemble fetches and decodes the operate history of every vault the owned
// positions touch and returns the rows sorted by timestamp, newest first,
// with encounter order preserved on ties.
//
// The event stream of a vault contract includes every user's activity, so
// rows whose NFT id is not among the owned ids for that vault are dropped.
// A vault whose fetch aborts contributes whatever pages were collected; a
// malformed log is skipped, not fatal.
func (a *Assembler) Assemble(ctx context.Context, owned []Owned, prices vault.PriceMap) ([]vault.LedgerRow, error) {
	order := make([]common.Address, 0, len(owned))
	groups := make(map[common.Address]*vaultGroup, len(owned))
	for _, position := range owned {
		if position.ID == nil {
			continue
		}
		group, ok := groups[position.VaultAddress]
		if !ok {
			// All positions on a vault share its token pair, so the first
			// owned position supplies the decode context.
			group = &vaultGroup{
				ctx: vault.VaultContext{
					VaultAddress: position.VaultAddress,
					Collateral:   position.Collateral,
					Debt:         position.Debt,
				},
				ids: make(map[string]struct{}),
			}
			groups[position.VaultAddress] = group
			order = append(order, position.VaultAddress)
		} else if group.ctx.Collateral.Address != position.Collateral.Address ||
			group.ctx.Debt.Address != position.Debt.Address {
			a.log.Debug("vault token pair mismatch across positions",
				"vault", position.VaultAddress.Hex(), "position", position.ID.String())
		}
		group.ids[position.ID.String()] = struct{}{}
	}

	var rows []vault.LedgerRow
	for _, address := range order {
		group := groups[address]
		entries, err := a.source.FetchAllLogs(ctx, address, a.topic)
		if err != nil {
			if ctx.Err() != nil {
				return rows, ctx.Err()
			}
			a.log.Warn("log fetch incomplete, using partial history",
				"vault", address.Hex(), "entries", len(entries), "error", err)
		}
		for _, entry := range entries {
			event, err := vault.DecodeOperateLog(entry, group.ctx, prices)
			if err != nil {
				observability.Pipeline().RecordDecodeSkip()
				a.log.Warn("skipping malformed operate log", "tx", entry.TxHash.Hex(), "error", err)
				continue
			}
			if event == nil {
				continue
			}
			if _, mine := group.ids[event.NftID.String()]; !mine {
				continue
			}
			rows = append(rows, event.Rows...)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})
	return rows, nil
}
