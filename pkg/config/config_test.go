package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/listing-ingest/internal/testutil"
	"github.com/Sternrassler/listing-ingest/pkg/client"
	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/Sternrassler/listing-ingest/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingEnv = []string{
	"LISTING_BASE_URL",
	"LISTING_API_KEY",
	"LISTING_LOG_LEVEL",
	"LISTING_LOG_PRETTY",
	"LISTING_STORE_BACKEND",
	"LISTING_REDIS_ADDR",
	"LISTING_POSTGRES_DSN",
	"LISTING_METRICS_ADDR",
}

// clearEnv blanks every LISTING_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range listingEnv {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 10, cfg.RateLimit.LeakRate)
	assert.Equal(t, 6*time.Second, cfg.RateLimit.LeakInterval)
	assert.Equal(t, 10, cfg.RateLimit.MaxFill)
	assert.Equal(t, 6, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 25, cfg.Pagination.PageSize)
	assert.Equal(t, 10, cfg.Report.Top)
	assert.Equal(t, BackendNone, cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.SnapshotTTL)
	assert.Equal(t, []listing.Query{
		{Type: "koop", Filter: "/amsterdam/"},
		{Type: "koop", Filter: "/amsterdam/tuin/"},
	}, []listing.Query{cfg.Searches[0].Query(), cfg.Searches[1].Query()})
}

func TestSearch_Heading(t *testing.T) {
	defaults := NewDefaultConfig().Searches

	assert.Equal(t, "Top 10 makelaars with 'koop' objects in Amsterdam", defaults[0].Heading(10))
	assert.Equal(t, "Top 3 makelaars with 'koop' objects with tuin in Amsterdam", defaults[1].Heading(3))

	untitled := Search{Type: "huur", Filter: "/utrecht/"}
	assert.Equal(t, "Top 5 owners with 'huur' listings in /utrecht/", untitled.Heading(5))

	fixed := Search{Title: "Rentals", Type: "huur", Filter: "/utrecht/"}
	assert.Equal(t, "Rentals", fixed.Heading(5))
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTING_API_KEY", testutil.TestAPIKey)
	t.Setenv("LISTING_LOG_LEVEL", "debug")
	t.Setenv("LISTING_LOG_PRETTY", "true")
	t.Setenv("LISTING_METRICS_ADDR", ":9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, testutil.TestAPIKey, cfg.API.APIKey)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
api:
  base_url: "http://localhost:8080/feeds/json"
  api_key: "abcdefabcdefabcdefabcdefabcdef12"
  timeout: 5s
  acquire_per_attempt: true
rate_limit:
  leak_rate: 5
  leak_interval: 3s
  max_fill: 5
  poll_interval: 100ms
  max_wait: 2m
retry:
  max_retries: 3
  base_delay: 250ms
pagination:
  page_size: 10
report:
  top: 5
searches:
  - type: huur
    filter: /rotterdam/
    title: Rentals in Rotterdam
store:
  backend: redis
  redis_addr: "cache:6379"
  snapshot_ttl: 1h
logging:
  level: warn
metrics_addr: ":9200"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/feeds/json", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.AcquirePerAttempt)
	assert.Equal(t, 5, cfg.RateLimit.LeakRate)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.LeakInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.RateLimit.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.MaxWait)
	assert.Equal(t, client.RetryPolicy{MaxRetries: 3, BaseDelay: 250 * time.Millisecond}, cfg.Retry)
	assert.Equal(t, 10, cfg.Pagination.PageSize)
	assert.Equal(t, 5, cfg.Report.Top)
	require.Len(t, cfg.Searches, 1)
	assert.Equal(t, Search{Title: "Rentals in Rotterdam", Type: "huur", Filter: "/rotterdam/"}, cfg.Searches[0])
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Store.SnapshotTTL)
	assert.Equal(t, logging.LevelWarn, cfg.Logging.Level)
	assert.Equal(t, ":9200", cfg.MetricsAddr)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
api:
  api_key: "abcdefabcdefabcdefabcdefabcdef12"
store:
  backend: redis
`)
	t.Setenv("LISTING_API_KEY", testutil.TestAPIKey)
	t.Setenv("LISTING_STORE_BACKEND", "postgres")
	t.Setenv("LISTING_POSTGRES_DSN", "postgres://listing:secret@db/listing")
	t.Setenv("LISTING_BASE_URL", "http://mirror.local/json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, testutil.TestAPIKey, cfg.API.APIKey)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://listing:secret@db/listing", cfg.Store.PostgresDSN)
	assert.Equal(t, "http://mirror.local/json", cfg.API.BaseURL)
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTING_API_KEY", testutil.TestAPIKey)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	_, err = Load(writeConfig(t, "api: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse YAML config")
}

func TestLoad_InvalidPrettyFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTING_API_KEY", testutil.TestAPIKey)
	t.Setenv("LISTING_LOG_PRETTY", "sometimes")

	_, err := Load("")

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "LISTING_LOG_PRETTY", cfgErr.Field)
}

func TestLoad_MissingAPIKeyFailsFast(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")

	assert.Nil(t, cfg)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "api.api_key", cfgErr.Field)
}

func TestLoadOffline_WithoutAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTING_STORE_BACKEND", "redis")

	cfg, err := LoadOffline("")
	require.NoError(t, err)

	assert.Empty(t, cfg.API.APIKey)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Error(t, cfg.ValidateAPI(), "the key is still checked when fetching")
}

func TestLoadOffline_ValidatesOtherSections(t *testing.T) {
	clearEnv(t)

	_, err := LoadOffline(writeConfig(t, "report:\n  top: -1\n"))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "report.top", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefaultConfig()
		cfg.API.APIKey = testutil.TestAPIKey
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid defaults", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = " " }, field: "api.base_url"},
		{name: "short api key", mutate: func(c *Config) { c.API.APIKey = "abc" }, field: "api.api_key"},
		{name: "api key with symbols", mutate: func(c *Config) { c.API.APIKey = "0123456789abcdef0123456789abcde!" }, field: "api.api_key"},
		{name: "negative timeout", mutate: func(c *Config) { c.API.Timeout = -time.Second }, field: "api.timeout"},
		{name: "zero leak rate", mutate: func(c *Config) { c.RateLimit.LeakRate = 0 }, field: "rate_limit"},
		{name: "zero max fill", mutate: func(c *Config) { c.RateLimit.MaxFill = 0 }, field: "rate_limit"},
		{name: "too many retries", mutate: func(c *Config) { c.Retry.MaxRetries = 100 }, field: "retry"},
		{name: "zero page size", mutate: func(c *Config) { c.Pagination.PageSize = 0 }, field: "pagination.page_size"},
		{name: "zero top", mutate: func(c *Config) { c.Report.Top = 0 }, field: "report.top"},
		{name: "no searches", mutate: func(c *Config) { c.Searches = nil }, field: "searches"},
		{name: "search without type", mutate: func(c *Config) { c.Searches[1].Type = "" }, field: "searches[1].type"},
		{name: "search without filter", mutate: func(c *Config) { c.Searches[0].Filter = "" }, field: "searches[0].filter"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, field: "store.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = BackendPostgres }, field: "store.postgres_dsn"},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.RedisAddr = ""
		}, field: "store.redis_addr"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, field: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected *ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
