// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Session   SessionConfig   `mapstructure:"session"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime from flags
}

// ChainConfig describes the network the application requires.
type ChainConfig struct {
	ID                uint64   `mapstructure:"id"`
	Name              string   `mapstructure:"name"`
	RPCURLs           []string `mapstructure:"rpc_urls"`
	BlockExplorerURLs []string `mapstructure:"block_explorer_urls"`
	CurrencyName      string   `mapstructure:"currency_name"`
	CurrencySymbol    string   `mapstructure:"currency_symbol"`
	CurrencyDecimals  uint8    `mapstructure:"currency_decimals"`
}

// WalletConfig configures the wallet provider connection.
type WalletConfig struct {
	// ProviderURL is the EIP-1193 JSON-RPC WebSocket endpoint of the wallet.
	// Empty means no wallet is installed.
	ProviderURL         string        `mapstructure:"provider_url"`
	Type                string        `mapstructure:"type"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	BalanceCacheTTL     time.Duration `mapstructure:"balance_cache_ttl"`
	MaxReconnects       int           `mapstructure:"max_reconnects"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
}

// SessionConfig selects where the rehydration marker lives.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, file or redis
	FilePath      string        `mapstructure:"file_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Exporter       string `mapstructure:"exporter"` // otlp, otlphttp, zipkin, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig configures the health check server.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("GENIP")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "GENIP_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "GENIP_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "GENIP_LOG_LEVEL", "LOG_LEVEL")

	// Chain
	v.BindEnv("chain.id", "GENIP_CHAIN_ID")
	v.BindEnv("chain.rpc_urls", "GENIP_CHAIN_RPC_URLS")
	v.BindEnv("chain.block_explorer_urls", "GENIP_CHAIN_EXPLORER_URLS")
	v.BindEnv("chain.currency_symbol", "GENIP_CHAIN_CURRENCY_SYMBOL")

	// Wallet
	v.BindEnv("wallet.provider_url", "GENIP_WALLET_PROVIDER_URL", "WALLET_PROVIDER_URL")
	v.BindEnv("wallet.type", "GENIP_WALLET_TYPE")
	v.BindEnv("wallet.settle_delay", "GENIP_WALLET_SETTLE_DELAY")
	v.BindEnv("wallet.confirmation_timeout", "GENIP_WALLET_CONFIRMATION_TIMEOUT")

	// Session
	v.BindEnv("session.backend", "GENIP_SESSION_BACKEND")
	v.BindEnv("session.file_path", "GENIP_SESSION_FILE")
	v.BindEnv("session.redis_addr", "GENIP_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("session.redis_password", "GENIP_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "GENIP_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "GENIP_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.exporter", "GENIP_OTEL_EXPORTER")
	v.BindEnv("telemetry.otlp_endpoint", "GENIP_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "GENIP_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")

	// Health
	v.BindEnv("health.port", "GENIP_HEALTH_PORT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "genip")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Story Aeneid testnet
	v.SetDefault("chain.id", 1315)
	v.SetDefault("chain.name", "Story Protocol Testnet")
	v.SetDefault("chain.rpc_urls", []string{"https://aeneid.storyrpc.io/"})
	v.SetDefault("chain.block_explorer_urls", []string{"https://aeneid.story.foundation/"})
	v.SetDefault("chain.currency_name", "IP")
	v.SetDefault("chain.currency_symbol", "IP")
	v.SetDefault("chain.currency_decimals", 18)

	v.SetDefault("wallet.provider_url", "ws://127.0.0.1:1248")
	v.SetDefault("wallet.type", "injected")
	v.SetDefault("wallet.request_timeout", "0s") // wallet prompts wait on the user
	v.SetDefault("wallet.settle_delay", "500ms")
	v.SetDefault("wallet.confirmation_timeout", "60s")
	v.SetDefault("wallet.receipt_poll_interval", "2s")
	v.SetDefault("wallet.balance_cache_ttl", "15s")
	v.SetDefault("wallet.max_reconnects", 0) // infinite
	v.SetDefault("wallet.initial_backoff", "1s")
	v.SetDefault("wallet.max_backoff", "30s")

	v.SetDefault("session.backend", "file")
	v.SetDefault("session.file_path", ".genip/session.yaml")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.key_prefix", "genip:")
	v.SetDefault("session.ttl", "0s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "genip")
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8080)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chain.ID == 0 {
		return fmt.Errorf("chain.id is required")
	}
	if c.Chain.Name == "" {
		return fmt.Errorf("chain.name is required")
	}
	if len(c.Chain.RPCURLs) == 0 {
		return fmt.Errorf("chain.rpc_urls cannot be empty")
	}
	for _, u := range c.Chain.RPCURLs {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid chain.rpc_urls entry %q: %w", u, err)
		}
	}
	if c.Chain.CurrencySymbol == "" {
		return fmt.Errorf("chain.currency_symbol is required")
	}
	if c.Wallet.ProviderURL != "" {
		u, err := url.Parse(c.Wallet.ProviderURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("wallet.provider_url must be a ws:// or wss:// URL: %q", c.Wallet.ProviderURL)
		}
	}
	if c.Wallet.ConfirmationTimeout <= 0 {
		return fmt.Errorf("wallet.confirmation_timeout must be positive")
	}
	switch c.Session.Backend {
	case "memory":
	case "file":
		if c.Session.FilePath == "" {
			return fmt.Errorf("session.file_path is required for the file backend")
		}
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}
	return nil
}
