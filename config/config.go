package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures the runtime settings for the report pipeline.
type Config struct {
	LogLevel        string `toml:"LogLevel"`
	RPCURL          string `toml:"RPCURL"`
	ResolverAddress string `toml:"ResolverAddress"`
	ChainID         uint64 `toml:"ChainID"`
	LogAPIURL       string `toml:"LogAPIURL"`
	LogAPIKey       string `toml:"LogAPIKey"`
	PriceAPIURL     string `toml:"PriceAPIURL"`
	TokenSeedFile   string `toml:"TokenSeedFile"`

	PageSize           int `toml:"PageSize"`
	PageIntervalMillis int `toml:"PageIntervalMillis"`
	RetryMaxAttempts   int `toml:"RetryMaxAttempts"`
	RetryBaseMillis    int `toml:"RetryBaseMillis"`
	RetryMaxMillis     int `toml:"RetryMaxMillis"`

	Listen          string `toml:"Listen"`
	RateLimitPerMin int    `toml:"RateLimitPerMin"`
}

const (
	defaultLogAPIURL       = "https://api.etherscan.io/v2/api"
	defaultChainID         = 1
	defaultPageSize        = 1000
	defaultPageInterval    = 250
	defaultRetryAttempts   = 8
	defaultRetryBaseMillis = 1000
	defaultRetryMaxMillis  = 30000
	defaultListen          = "0.0.0.0:8089"
	defaultRateLimit       = 60
)

// Load reads the configuration from the given path, backfilling defaults.
// A missing file is created with the defaults so a first run is
// self-documenting.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.LogAPIURL) == "" {
		c.LogAPIURL = defaultLogAPIURL
	}
	if c.ChainID == 0 {
		c.ChainID = defaultChainID
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.PageIntervalMillis <= 0 {
		c.PageIntervalMillis = defaultPageInterval
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = defaultRetryAttempts
	}
	if c.RetryBaseMillis <= 0 {
		c.RetryBaseMillis = defaultRetryBaseMillis
	}
	if c.RetryMaxMillis <= 0 {
		c.RetryMaxMillis = defaultRetryMaxMillis
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = defaultListen
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = defaultRateLimit
	}
}

// Validate checks the settings a report run cannot proceed without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("config: RPCURL is required")
	}
	resolver := strings.TrimSpace(c.ResolverAddress)
	if resolver == "" {
		return fmt.Errorf("config: ResolverAddress is required")
	}
	if !common.IsHexAddress(resolver) {
		return fmt.Errorf("config: ResolverAddress %q is not a hex address", resolver)
	}
	return nil
}

// Resolver returns the parsed resolver contract address. Call Validate first.
func (c *Config) Resolver() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.ResolverAddress))
}

// PageInterval returns the pacing delay between log page requests.
func (c *Config) PageInterval() time.Duration {
	return time.Duration(c.PageIntervalMillis) * time.Millisecond
}

// RetryBase returns the backoff seed delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMillis) * time.Millisecond
}

// RetryMax returns the backoff ceiling.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMillis) * time.Millisecond
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config file: %w", err)
	}
	defer func() { _ = file.Close() }()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	// The defaults intentionally omit RPCURL and ResolverAddress; a fresh
	// file fails validation until the operator fills them in.
	return cfg, nil
}
