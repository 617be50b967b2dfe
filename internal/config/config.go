// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Movement fullnode REST endpoint for view calls and account resources
	FullnodeURL string

	// Base URLs for the off-chain data sources
	LlamaURL  string
	YieldsURL string
	PythURL   string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// API keys for various services
	APIKeys map[string]string

	// Per-request timeout for outbound calls
	RequestTimeout time.Duration

	// TTL for the yield-pool listing cache
	PoolCacheTTL time.Duration

	// Assumed strategy age in days when deployment age is unknown
	StrategyAgeDays float64

	// Upper clamp for annualized profit-based APY, in percent
	APYClampMax float64

	// Transaction-signing collaborator endpoint
	SignerURL string

	// Webhook export settings
	WebhookURL    string
	WebhookAPIKey string

	// Circuit breaker settings
	MaxPoolAPY        float64
	MaxTVLChange      float64
	MinPoolCount      int
	CircuitResetDelay time.Duration
}

// Load creates a new Config from environment variables
func Load() Config {
	apiKeys := map[string]string{}
	if raw := os.Getenv("API_KEYS"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &apiKeys)
	}

	return Config{
		Port:              GetEnvOrDefault("PORT", "8080"),
		FullnodeURL:       GetEnvOrDefault("FULLNODE_URL", "https://mainnet.movementnetwork.xyz/v1"),
		LlamaURL:          GetEnvOrDefault("LLAMA_URL", "https://api.llama.fi"),
		YieldsURL:         GetEnvOrDefault("YIELDS_URL", "https://yields.llama.fi"),
		PythURL:           GetEnvOrDefault("PYTH_URL", "https://hermes.pyth.network"),
		OtelEndpoint:      GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		APIKeys:           apiKeys,
		RequestTimeout:    GetEnvAsDuration("REQUEST_TIMEOUT", 8*time.Second),
		PoolCacheTTL:      GetEnvAsDuration("POOL_CACHE_TTL", 5*time.Minute),
		StrategyAgeDays:   GetEnvAsFloat("STRATEGY_AGE_DAYS", 75.0),
		APYClampMax:       GetEnvAsFloat("APY_CLAMP_MAX", 150.0),
		SignerURL:         GetEnvOrDefault("SIGNER_URL", "http://localhost:9090"),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		WebhookAPIKey:     os.Getenv("WEBHOOK_API_KEY"),
		MaxPoolAPY:        GetEnvAsFloat("MAX_POOL_APY", 1000.0),
		MaxTVLChange:      GetEnvAsFloat("MAX_TVL_CHANGE", 0.5), // 50% max TVL swing
		MinPoolCount:      GetEnvAsInt("MIN_POOL_COUNT", 1),
		CircuitResetDelay: GetEnvAsDuration("CIRCUIT_RESET_DELAY", 5*time.Minute),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
