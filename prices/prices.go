package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vaultscope/observability"
	"vaultscope/vault"
)

const defaultEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// HTTPDoer abstracts the HTTP client so tests can stub transport behaviour.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// stableSymbols are pegged assets quoted at 1.0 unconditionally, live feed or
// not.
var stableSymbols = map[string]struct{}{
	"USDC":  {},
	"USDT":  {},
	"DAI":   {},
	"USDe":  {},
	"sUSDe": {},
	"GHO":   {},
}

// defaultAssetIDs maps token symbols to price-feed asset identifiers.
// Symbols without a mapping stay unresolved and price at zero downstream.
var defaultAssetIDs = map[string]string{
	"ETH":    "ethereum",
	"WETH":   "ethereum",
	"wstETH": "wrapped-steth",
	"weETH":  "wrapped-eeth",
	"WBTC":   "wrapped-bitcoin",
	"cbBTC":  "coinbase-wrapped-btc",
}

// fallbackPrices are coarse approximations applied when the feed is down, so
// a price outage degrades report fidelity instead of aborting it.
var fallbackPrices = map[string]decimal.Decimal{
	"ETH":    decimal.NewFromInt(3000),
	"WETH":   decimal.NewFromInt(3000),
	"wstETH": decimal.NewFromInt(3500),
	"weETH":  decimal.NewFromInt(3100),
	"WBTC":   decimal.NewFromInt(60000),
	"cbBTC":  decimal.NewFromInt(60000),
}

// Resolver batches symbol lookups into a single simple-price request.
type Resolver struct {
	client   HTTPDoer
	endpoint string
	assetIDs map[string]string
	log      *slog.Logger
}

// NewResolver constructs a resolver. An empty endpoint selects the public
// simple-price API; a nil client gets a timeout-bounded default.
func NewResolver(client HTTPDoer, endpoint string, log *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{client: client, endpoint: endpoint, assetIDs: defaultAssetIDs, log: log}
}

// Resolve maps the requested symbols to USD prices. Stable assets are seeded
// at 1.0 before any network activity, one batched request covers every
// mapped symbol, and a feed failure falls back to static approximations
// instead of propagating. The second return is true when fallbacks were
// used.
func (r *Resolver) Resolve(ctx context.Context, symbols []string) (vault.PriceMap, bool) {
	prices := make(vault.PriceMap, len(symbols))
	wanted := make([]string, 0, len(symbols))
	ids := make([]string, 0, len(symbols))
	seenID := make(map[string]struct{}, len(symbols))

	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if _, ok := stableSymbols[symbol]; ok {
			prices[symbol] = decimal.NewFromInt(1)
			continue
		}
		id, ok := r.assetIDs[symbol]
		if !ok {
			continue
		}
		wanted = append(wanted, symbol)
		if _, dup := seenID[id]; !dup {
			seenID[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return prices, false
	}
	sort.Strings(ids)

	quotes, err := r.fetch(ctx, ids)
	if err != nil {
		r.log.Warn("price feed unavailable, applying fallbacks", "error", err)
		degraded := false
		for _, symbol := range wanted {
			if approx, ok := fallbackPrices[symbol]; ok {
				prices[symbol] = approx
				degraded = true
				observability.Pipeline().RecordPriceFallback(symbol)
			}
		}
		return prices, degraded
	}

	for _, symbol := range wanted {
		if quote, ok := quotes[r.assetIDs[symbol]]; ok {
			prices[symbol] = quote
		}
	}
	return prices, false
}

func (r *Resolver) fetch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("ids", strings.Join(ids, ","))
	values.Set("vs_currencies", "usd")
	req.URL.RawQuery = values.Encode()

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("price feed: decode: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(payload))
	for id, entry := range payload {
		price, err := decimal.NewFromString(entry.USD.String())
		if err != nil || price.IsNegative() {
			continue
		}
		quotes[id] = price
	}
	return quotes, nil
}
