package logsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"vaultscope/observability"
	"vaultscope/vault"
)

// maxPageSize is the log API's documented page ceiling; a page shorter than
// this signals exhaustion.
const maxPageSize = 1000

// defaultPageInterval is the minimum spacing between page requests, keeping a
// full pagination run inside the API's free-tier request ceiling.
const defaultPageInterval = 250 * time.Millisecond

// ErrRateLimited marks a pagination run that exhausted its retry budget
// against sustained throttling. Pages collected before the abort are still
// returned.
var ErrRateLimited = errors.New("logsource: rate limited")

var (
	errThrottled = errors.New("logsource: throttled page")
	errNoRecords = errors.New("logsource: no records")
)

// HTTPDoer abstracts the HTTP client for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries the settings for a log API client.
type Config struct {
	Endpoint     string
	APIKey       string
	ChainID      uint64
	PageSize     int
	PageInterval time.Duration
	Retry        RetryPolicy
	HTTPClient   HTTPDoer
	Log          *slog.Logger
}

// Client retrieves event logs from an Etherscan-style paginated API. Page
// requests are strictly sequential and paced by a shared limiter; rate-limit
// responses are retried in place with bounded exponential backoff.
type Client struct {
	httpClient HTTPDoer
	endpoint   string
	apiKey     string
	chainID    uint64
	pageSize   int
	limiter    *rate.Limiter
	retry      RetryPolicy
	log        *slog.Logger
}

// NewClient constructs a client, filling defaults for any zero setting.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	interval := cfg.PageInterval
	if interval <= 0 {
		interval = defaultPageInterval
	}
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		chainID:    cfg.ChainID,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		retry:      cfg.Retry.withDefaults(),
		log:        logger,
	}
}

// FetchAllLogs retrieves every log emitted by the contract that matches the
// topic signature. Pagination runs FETCHING(page) -> MORE | DONE | RETRY |
// ABORTED: a short or empty page terminates, throttling retries the same
// page, and any other failure aborts while preserving the pages already
// collected alongside the error.
func (c *Client) FetchAllLogs(ctx context.Context, address common.Address, topic common.Hash) ([]vault.RawLogEntry, error) {
	var collected []vault.RawLogEntry
	page := 1
	attempts := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return collected, err
		}
		records, err := c.fetchPage(ctx, address, topic, page)
		switch {
		case errors.Is(err, errThrottled):
			attempts++
			if attempts >= c.retry.MaxAttempts {
				return collected, fmt.Errorf("%w: page %d after %d attempts", ErrRateLimited, page, attempts)
			}
			observability.Pipeline().RecordThrottle()
			delay := c.retry.Backoff(attempts)
			c.log.Debug("log page throttled, backing off", "page", page, "attempt", attempts, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return collected, err
			}
			continue
		case errors.Is(err, errNoRecords):
			return collected, nil
		case err != nil:
			return collected, fmt.Errorf("fetch page %d for %s: %w", page, address.Hex(), err)
		}
		attempts = 0
		observability.Pipeline().RecordPage()
		for _, record := range records {
			entry, err := record.toEntry()
			if err != nil {
				c.log.Warn("skipping unparsable log record", "tx", record.TransactionHash, "error", err)
				continue
			}
			collected = append(collected, entry)
		}
		if len(records) < c.pageSize {
			return collected, nil
		}
		page++
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type logRecord struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	TimeStamp       string   `json:"timeStamp"`
	TransactionHash string   `json:"transactionHash"`
}

func (r logRecord) toEntry() (vault.RawLogEntry, error) {
	data, err := hexutil.Decode(r.Data)
	if err != nil {
		return vault.RawLogEntry{}, fmt.Errorf("data: %w", err)
	}
	timestamp, err := parseTimestamp(r.TimeStamp)
	if err != nil {
		return vault.RawLogEntry{}, fmt.Errorf("timestamp: %w", err)
	}
	return vault.RawLogEntry{
		VaultAddress:   common.HexToAddress(r.Address),
		Data:           data,
		BlockTimestamp: timestamp,
		TxHash:         common.HexToHash(r.TransactionHash),
	}, nil
}

func parseTimestamp(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "0x") {
		return hexutil.DecodeUint64(raw)
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (c *Client) fetchPage(ctx context.Context, address common.Address, topic common.Hash, page int) ([]logRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("module", "logs")
	values.Set("action", "getLogs")
	values.Set("address", strings.ToLower(address.Hex()))
	values.Set("topic0", topic.Hex())
	values.Set("fromBlock", "0")
	values.Set("toBlock", "latest")
	values.Set("page", strconv.Itoa(page))
	values.Set("offset", strconv.Itoa(c.pageSize))
	if c.chainID != 0 {
		values.Set("chainid", strconv.FormatUint(c.chainID, 10))
	}
	if c.apiKey != "" {
		values.Set("apikey", c.apiKey)
	}
	req.URL.RawQuery = values.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errThrottled
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Status != "1" {
		// The API reports both "no records" and throttling with status 0;
		// the result payload is a plain string in both cases.
		var notice string
		if err := json.Unmarshal(env.Result, &notice); err != nil {
			notice = env.Message
		}
		if isRateLimitNotice(notice) || isRateLimitNotice(env.Message) {
			return nil, errThrottled
		}
		if isNoRecordsNotice(env.Message) || isNoRecordsNotice(notice) {
			return nil, errNoRecords
		}
		return nil, fmt.Errorf("api error: %s: %s", env.Message, notice)
	}

	var records []logRecord
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if len(records) == 0 {
		return nil, errNoRecords
	}
	return records, nil
}

func isRateLimitNotice(notice string) bool {
	return strings.Contains(strings.ToLower(notice), "rate limit")
}

func isNoRecordsNotice(notice string) bool {
	return strings.Contains(strings.ToLower(notice), "no records found")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
