// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string
	APIKey    string // shared secret checked against X-API-Key; empty disables auth outside production

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Chain and explorer
	RPCURL          string
	ChainID         int64
	ExplorerURL     string
	ExplorerAPIKey  string
	VerifyCacheSize int

	// Explanation model
	LLMURL    string
	LLMAPIKey string
	LLMModel  string

	// Monitoring
	PollInterval     time.Duration
	ReapInterval     time.Duration
	SessionRetention time.Duration
	AnalysisWorkers  int
	AnalysisQueue    int
	PersistAttempts  int
	PersistBackoff   time.Duration

	// Optional sinks
	KafkaBrokers     []string
	KafkaTopic       string
	DiscordToken     string
	DiscordChannelID string

	// Tracing
	OTLPEndpoint string
}

// Base mainnet defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultRPCURL           = "https://mainnet.base.org"
	DefaultChainID          = 8453
	DefaultExplorerURL      = "https://api.basescan.org/api"
	DefaultLLMURL           = "https://api.openai.com/v1"
	DefaultLLMModel         = "gpt-4o-mini"
	DefaultPollInterval     = 30 * time.Second
	DefaultReapInterval     = time.Hour
	DefaultSessionRetention = time.Hour
	DefaultAnalysisWorkers  = 8
	DefaultAnalysisQueue    = 256
	DefaultPersistAttempts  = 3
	DefaultPersistBackoff   = time.Second
	DefaultVerifyCacheSize  = 1024
	DefaultKafkaTopic       = "txbuddy.analysis"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		APIKey:           os.Getenv("API_KEY"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RPCURL:           getEnv("RPC_URL", DefaultRPCURL),
		ChainID:          getEnvInt64("CHAIN_ID", DefaultChainID),
		ExplorerURL:      getEnv("EXPLORER_URL", DefaultExplorerURL),
		ExplorerAPIKey:   os.Getenv("EXPLORER_API_KEY"),
		VerifyCacheSize:  int(getEnvInt64("VERIFY_CACHE_SIZE", DefaultVerifyCacheSize)),
		LLMURL:           getEnv("LLM_URL", DefaultLLMURL),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnv("LLM_MODEL", DefaultLLMModel),
		PollInterval:     getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		ReapInterval:     getEnvDuration("REAP_INTERVAL", DefaultReapInterval),
		SessionRetention: getEnvDuration("SESSION_RETENTION", DefaultSessionRetention),
		AnalysisWorkers:  int(getEnvInt64("ANALYSIS_WORKERS", DefaultAnalysisWorkers)),
		AnalysisQueue:    int(getEnvInt64("ANALYSIS_QUEUE", DefaultAnalysisQueue)),
		PersistAttempts:  int(getEnvInt64("PERSIST_ATTEMPTS", DefaultPersistAttempts)),
		PersistBackoff:   getEnvDuration("PERSIST_BACKOFF", DefaultPersistBackoff),
		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.ExplorerAPIKey == "" {
		return fmt.Errorf("EXPLORER_API_KEY is required")
	}
	if c.IsProduction() {
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required in production")
		}
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required in production")
		}
	}
	if c.PollInterval <= 0 || c.ReapInterval <= 0 || c.SessionRetention <= 0 {
		return fmt.Errorf("POLL_INTERVAL, REAP_INTERVAL and SESSION_RETENTION must be positive")
	}
	if c.AnalysisWorkers <= 0 || c.AnalysisQueue <= 0 {
		return fmt.Errorf("ANALYSIS_WORKERS and ANALYSIS_QUEUE must be positive")
	}
	if c.PersistAttempts <= 0 {
		return fmt.Errorf("PERSIST_ATTEMPTS must be positive")
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
