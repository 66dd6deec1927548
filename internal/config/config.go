package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LedgerConfig holds the settings the ledger is deployed with
type LedgerConfig struct {
	Network        string // network name from the network table, e.g. "hardhat"
	ChainID        int    // alternative to Network; 0 means unset
	NetworksFile   string // optional YAML overrides for the network table
	RPCURL         string // required for live networks
	OwnerAddress   string
	MinimumUSD     int64 // whole USD
	PriceMaxAgeSec int   // 0 disables the freshness check
	MockDecimals   int
	MockAnswer     string // base-10 integer at MockDecimals precision
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeKB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables. Values from .env and
// .env.local are loaded first; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/fundme.db"),
			},
		},
		Ledger: LedgerConfig{
			Network:        getEnv("NETWORK", "hardhat"),
			ChainID:        getEnvInt("CHAIN_ID", 0),
			NetworksFile:   getEnv("NETWORKS_FILE", ""),
			RPCURL:         getEnv("RPC_URL", ""),
			OwnerAddress:   getEnv("OWNER_ADDRESS", ""),
			MinimumUSD:     int64(getEnvInt("MINIMUM_USD", 50)),
			PriceMaxAgeSec: getEnvInt("PRICE_FEED_MAX_AGE_SECONDS", 3600),
			MockDecimals:   getEnvInt("MOCK_PRICE_DECIMALS", 8),
			MockAnswer:     getEnv("MOCK_PRICE_ANSWER", "200000000000"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeKB: getEnvInt("SECURITY_MAX_BODY_SIZE_KB", 64),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.URL == "" {
		return errors.New("DATABASE_URL is required for postgres storage")
	}
	if c.Ledger.OwnerAddress == "" {
		return errors.New("OWNER_ADDRESS is required")
	}
	if !common.IsHexAddress(c.Ledger.OwnerAddress) {
		return fmt.Errorf("OWNER_ADDRESS is not a valid address: %s", c.Ledger.OwnerAddress)
	}
	if c.Ledger.MinimumUSD < 0 {
		return errors.New("MINIMUM_USD must not be negative")
	}
	if c.Ledger.MockDecimals < 0 || c.Ledger.MockDecimals > 36 {
		return fmt.Errorf("MOCK_PRICE_DECIMALS out of range: %d", c.Ledger.MockDecimals)
	}
	return nil
}

// Owner returns the configured owner as an address. Call Validate first.
func (c *Config) Owner() common.Address {
	return common.HexToAddress(c.Ledger.OwnerAddress)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
