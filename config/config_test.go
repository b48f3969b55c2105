package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultscope.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "https://rpc.example.org"
ResolverAddress = "0xCccCCccCCCcCcCcCCCcCCcCCCCcCcCCCcCcccCcC"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageSize != 1000 {
		t.Fatalf("PageSize = %d", cfg.PageSize)
	}
	if cfg.PageInterval() != 250*time.Millisecond {
		t.Fatalf("PageInterval = %v", cfg.PageInterval())
	}
	if cfg.ChainID != 1 {
		t.Fatalf("ChainID = %d", cfg.ChainID)
	}
	if cfg.RetryMaxAttempts != 8 {
		t.Fatalf("RetryMaxAttempts = %d", cfg.RetryMaxAttempts)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "https://rpc.example.org"
ResolverAddress = "0xCccCCccCCCcCcCcCCCcCCcCCCCcCcCCCcCcccCcC"
SomeTypo = true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestLoadRequiresResolver(t *testing.T) {
	path := writeConfig(t, `RPCURL = "https://rpc.example.org"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsBadResolverAddress(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "https://rpc.example.org"
ResolverAddress = "not-an-address"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected address validation error")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "vaultscope.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen == "" {
		t.Fatal("defaults not applied on create")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
}
