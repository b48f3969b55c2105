package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vaultscope/ledger"
	"vaultscope/observability"
	"vaultscope/positions"
	"vaultscope/vault"
)

// TokenResolver answers token metadata lookups.
type TokenResolver interface {
	Resolve(ctx context.Context, address common.Address) (vault.TokenMetadata, error)
}

// PriceResolver maps symbols to USD prices; the bool reports degraded
// (fallback) pricing.
type PriceResolver interface {
	Resolve(ctx context.Context, symbols []string) (vault.PriceMap, bool)
}

// LedgerAssembler builds the transaction history for a set of owned positions.
type LedgerAssembler interface {
	Assemble(ctx context.Context, owned []ledger.Owned, prices vault.PriceMap) ([]vault.LedgerRow, error)
}

// Report is the sole output contract handed to consumers; rendering and
// layout are entirely theirs.
type Report struct {
	ReportID           uuid.UUID         `json:"reportId"`
	GeneratedAt        time.Time         `json:"generatedAt"`
	Owner              common.Address    `json:"owner"`
	Positions          []vault.Position  `json:"positions"`
	Ledger             []vault.LedgerRow `json:"ledger"`
	Prices             vault.PriceMap    `json:"prices"`
	TotalCollateralUSD decimal.Decimal   `json:"totalCollateralUsd"`
	TotalDebtUSD       decimal.Decimal   `json:"totalDebtUsd"`
	// Degraded is true when price-feed fallbacks were applied; the report
	// is still valid, just of reduced fidelity.
	Degraded bool `json:"degraded"`
}

// Service drives the full pipeline: enumerate raw positions, resolve
// metadata and prices, normalize, and assemble the ledger. Every invocation
// builds fresh state; nothing outlives a single report.
type Service struct {
	source    positions.Source
	tokens    TokenResolver
	prices    PriceResolver
	assembler LedgerAssembler
	log       *slog.Logger
}

// NewService wires the pipeline together.
func NewService(source positions.Source, tokens TokenResolver, prices PriceResolver, assembler LedgerAssembler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{source: source, tokens: tokens, prices: prices, assembler: assembler, log: log}
}

type enumerated struct {
	raw   vault.RawPosition
	vault vault.RawVault
	coll  vault.TokenMetadata
	debt  vault.TokenMetadata
}

// GenerateByOwner produces a full report for every eligible position the
// owner holds. Liquidated, empty, supply-only and smart-pool positions are
// filtered here, at the enumeration boundary.
func (s *Service) GenerateByOwner(ctx context.Context, owner common.Address) (*Report, error) {
	started := time.Now()
	rawPositions, rawVaults, err := s.source.PositionsByOwner(ctx, owner)
	if err != nil {
		observability.Pipeline().RecordReport("error", time.Since(started))
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	if len(rawPositions) == 0 {
		observability.Pipeline().RecordReport("empty", time.Since(started))
		return nil, fmt.Errorf("%w: owner %s", ErrNoPositions, owner.Hex())
	}
	if len(rawPositions) != len(rawVaults) {
		observability.Pipeline().RecordReport("error", time.Since(started))
		return nil, fmt.Errorf("%w: mismatched position/vault arity", ErrConnectivity)
	}

	eligible := make([]int, 0, len(rawPositions))
	for i, raw := range rawPositions {
		if vault.ReportEligible(raw) {
			eligible = append(eligible, i)
		}
	}

	metadata := s.resolveTokens(ctx, rawVaults, eligible)

	items := make([]enumerated, 0, len(eligible))
	for _, i := range eligible {
		coll, okColl := metadata[rawVaults[i].SupplyTokenAddress]
		debt, okDebt := metadata[rawVaults[i].BorrowTokenAddress]
		if !okColl || !okDebt {
			// Metadata failure isolates the position, not the report.
			s.log.Warn("skipping position with unresolved token metadata",
				"position", rawPositions[i].ID, "vault", rawVaults[i].VaultAddress.Hex())
			continue
		}
		items = append(items, enumerated{raw: rawPositions[i], vault: rawVaults[i], coll: coll, debt: debt})
	}

	return s.build(ctx, owner, items, started)
}

// GenerateByPosition produces a report scoped to one position id. Filtering
// flags do not apply here: a directly requested position is always
// normalized, with its liquidation state exposed for display.
func (s *Service) GenerateByPosition(ctx context.Context, id *big.Int) (*Report, error) {
	started := time.Now()
	raw, rawVault, err := s.source.PositionByID(ctx, id)
	if err != nil {
		observability.Pipeline().RecordReport("error", time.Since(started))
		if errors.Is(err, positions.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	coll, err := s.tokens.Resolve(ctx, rawVault.SupplyTokenAddress)
	if err != nil {
		observability.Pipeline().RecordReport("error", time.Since(started))
		return nil, fmt.Errorf("resolve collateral token: %w", err)
	}
	debt, err := s.tokens.Resolve(ctx, rawVault.BorrowTokenAddress)
	if err != nil {
		observability.Pipeline().RecordReport("error", time.Since(started))
		return nil, fmt.Errorf("resolve debt token: %w", err)
	}

	items := []enumerated{{raw: raw, vault: rawVault, coll: coll, debt: debt}}
	return s.build(ctx, raw.Owner, items, started)
}

func (s *Service) build(ctx context.Context, owner common.Address, items []enumerated, started time.Time) (*Report, error) {
	symbolSet := make(map[string]struct{}, len(items)*2)
	symbols := make([]string, 0, len(items)*2)
	for _, item := range items {
		for _, symbol := range []string{item.coll.Symbol, item.debt.Symbol} {
			if _, seen := symbolSet[symbol]; !seen {
				symbolSet[symbol] = struct{}{}
				symbols = append(symbols, symbol)
			}
		}
	}
	sort.Strings(symbols)
	priceMap, degraded := s.prices.Resolve(ctx, symbols)

	normalized := make([]vault.Position, 0, len(items))
	owned := make([]ledger.Owned, 0, len(items))
	totalCollateral := decimal.Zero
	totalDebt := decimal.Zero
	for _, item := range items {
		position := vault.Normalize(item.raw, item.vault, item.coll, item.debt)
		normalized = append(normalized, position)
		owned = append(owned, ledger.Owned{
			ID:           item.raw.ID,
			VaultAddress: item.vault.VaultAddress,
			Collateral:   item.coll,
			Debt:         item.debt,
		})
		totalCollateral = totalCollateral.Add(position.Collateral.Amount.Mul(priceMap.USD(item.coll.Symbol)))
		totalDebt = totalDebt.Add(position.Debt.Amount.Mul(priceMap.USD(item.debt.Symbol)))
	}
	sort.Slice(normalized, func(i, j int) bool {
		if normalized[i].ID == nil || normalized[j].ID == nil {
			return normalized[j].ID != nil
		}
		return normalized[i].ID.Cmp(normalized[j].ID) < 0
	})

	rows, err := s.assembler.Assemble(ctx, owned, priceMap)
	if err != nil {
		observability.Pipeline().RecordReport("error", time.Since(started))
		return nil, fmt.Errorf("assemble ledger: %w", err)
	}

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	observability.Pipeline().RecordReport(outcome, time.Since(started))

	return &Report{
		ReportID:           uuid.New(),
		GeneratedAt:        time.Now().UTC(),
		Owner:              owner,
		Positions:          normalized,
		Ledger:             rows,
		Prices:             priceMap,
		TotalCollateralUSD: totalCollateral,
		TotalDebtUSD:       totalDebt,
		Degraded:           degraded,
	}, nil
}

// resolveTokens fans out one metadata lookup per distinct token address and
// joins them all. Lookups share no state and order does not matter; the
// registry absorbs repeats before any of them reaches the network.
func (s *Service) resolveTokens(ctx context.Context, rawVaults []vault.RawVault, eligible []int) map[common.Address]vault.TokenMetadata {
	addressSet := make(map[common.Address]struct{})
	for _, i := range eligible {
		addressSet[rawVaults[i].SupplyTokenAddress] = struct{}{}
		addressSet[rawVaults[i].BorrowTokenAddress] = struct{}{}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		resolved = make(map[common.Address]vault.TokenMetadata, len(addressSet))
	)
	for address := range addressSet {
		wg.Add(1)
		go func(address common.Address) {
			defer wg.Done()
			meta, err := s.tokens.Resolve(ctx, address)
			if err != nil {
				s.log.Warn("token metadata lookup failed", "token", address.Hex(), "error", err)
				return
			}
			mu.Lock()
			resolved[address] = meta
			mu.Unlock()
		}(address)
	}
	wg.Wait()
	return resolved
}
