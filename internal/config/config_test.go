package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "EXPLORER_API_KEY", "explorer-key")
	setEnv(t, "ENV", "development")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultExplorerURL, cfg.ExplorerURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.ReapInterval)
	assert.Equal(t, time.Hour, cfg.SessionRetention)
	assert.Equal(t, 3, cfg.PersistAttempts)
	assert.Equal(t, time.Second, cfg.PersistBackoff)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "EXPLORER_API_KEY", "explorer-key")
	setEnv(t, "ENV", "development")
	setEnv(t, "POLL_INTERVAL", "5s")
	setEnv(t, "ANALYSIS_WORKERS", "2")
	setEnv(t, "KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2, cfg.AnalysisWorkers)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MissingExplorerKey(t *testing.T) {
	setEnv(t, "EXPLORER_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPLORER_API_KEY is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Env:              "development",
			RPCURL:           DefaultRPCURL,
			ExplorerAPIKey:   "k",
			PollInterval:     time.Second,
			ReapInterval:     time.Hour,
			SessionRetention: time.Hour,
			AnalysisWorkers:  1,
			AnalysisQueue:    1,
			PersistAttempts:  3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no rpc", func(c *Config) { c.RPCURL = "" }, "RPC_URL is required"},
		{"production without api key", func(c *Config) {
			c.Env = "production"
			c.LLMAPIKey = "sk"
		}, "API_KEY is required in production"},
		{"production without llm key", func(c *Config) {
			c.Env = "production"
			c.APIKey = "secret"
		}, "LLM_API_KEY is required in production"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "must be positive"},
		{"zero workers", func(c *Config) { c.AnalysisWorkers = 0 }, "ANALYSIS_WORKERS"},
		{"zero attempts", func(c *Config) { c.PersistAttempts = 0 }, "PERSIST_ATTEMPTS"},
		{"discord half configured", func(c *Config) { c.DiscordToken = "t" }, "DISCORD_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
