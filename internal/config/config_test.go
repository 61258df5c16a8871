package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chain.ID != 1315 {
		t.Errorf("Chain.ID = %d, want 1315", cfg.Chain.ID)
	}
	if cfg.Chain.Name != "Story Protocol Testnet" {
		t.Errorf("Chain.Name = %q", cfg.Chain.Name)
	}
	if cfg.Chain.CurrencySymbol != "IP" || cfg.Chain.CurrencyDecimals != 18 {
		t.Errorf("currency = %s/%d", cfg.Chain.CurrencySymbol, cfg.Chain.CurrencyDecimals)
	}
	if len(cfg.Chain.RPCURLs) != 1 || cfg.Chain.RPCURLs[0] != "https://aeneid.storyrpc.io/" {
		t.Errorf("RPCURLs = %v", cfg.Chain.RPCURLs)
	}
	if cfg.Wallet.SettleDelay != 500*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.Wallet.SettleDelay)
	}
	if cfg.Wallet.ConfirmationTimeout != 60*time.Second {
		t.Errorf("ConfirmationTimeout = %v", cfg.Wallet.ConfirmationTimeout)
	}
	if cfg.Session.Backend != "file" {
		t.Errorf("Session.Backend = %q", cfg.Session.Backend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GENIP_CHAIN_ID", "1514")
	t.Setenv("GENIP_WALLET_PROVIDER_URL", "ws://localhost:9999")
	t.Setenv("GENIP_SESSION_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ID != 1514 {
		t.Errorf("Chain.ID = %d", cfg.Chain.ID)
	}
	if cfg.Wallet.ProviderURL != "ws://localhost:9999" {
		t.Errorf("ProviderURL = %q", cfg.Wallet.ProviderURL)
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("Backend = %q", cfg.Session.Backend)
	}
	if cfg.App.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.App.LogLevel)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genip.yaml")
	content := `
wallet:
  provider_url: ""
  settle_delay: 1s
session:
  backend: redis
  redis_addr: redis:6379
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wallet.ProviderURL != "" {
		t.Errorf("ProviderURL = %q, want empty", cfg.Wallet.ProviderURL)
	}
	if cfg.Wallet.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v", cfg.Wallet.SettleDelay)
	}
	if cfg.Session.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q", cfg.Session.RedisAddr)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Chain: ChainConfig{
				ID:             1315,
				Name:           "Story Protocol Testnet",
				RPCURLs:        []string{"https://aeneid.storyrpc.io/"},
				CurrencySymbol: "IP",
			},
			Wallet:  WalletConfig{ProviderURL: "ws://127.0.0.1:1248", ConfirmationTimeout: time.Minute},
			Session: SessionConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no chain id", func(c *Config) { c.Chain.ID = 0 }, "chain.id"},
		{"no rpc", func(c *Config) { c.Chain.RPCURLs = nil }, "chain.rpc_urls"},
		{"bad rpc", func(c *Config) { c.Chain.RPCURLs = []string{"not a url"} }, "chain.rpc_urls"},
		{"http provider", func(c *Config) { c.Wallet.ProviderURL = "http://x" }, "wallet.provider_url"},
		{"no provider is fine", func(c *Config) { c.Wallet.ProviderURL = "" }, ""},
		{"zero timeout", func(c *Config) { c.Wallet.ConfirmationTimeout = 0 }, "confirmation_timeout"},
		{"file without path", func(c *Config) { c.Session.Backend = "file" }, "session.file_path"},
		{"unknown backend", func(c *Config) { c.Session.Backend = "etcd" }, "session.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
