// Package config loads the listing ingestion configuration from defaults,
// an optional YAML file and LISTING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/client"
	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/Sternrassler/listing-ingest/pkg/logging"
	"github.com/Sternrassler/listing-ingest/pkg/pagination"
	"github.com/Sternrassler/listing-ingest/pkg/ratelimit"
	"github.com/Sternrassler/listing-ingest/pkg/report"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendNone     = "none"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultBaseURL is the public listing feed endpoint.
const DefaultBaseURL = "http://partnerapi.funda.nl/feeds/Aanbod.svc/json"

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config is the complete configuration of a listing report run.
type Config struct {
	API         APIConfig              `yaml:"api"`
	RateLimit   ratelimit.BucketConfig `yaml:"rate_limit"`
	Retry       client.RetryPolicy     `yaml:"retry"`
	Pagination  pagination.Config      `yaml:"pagination"`
	Report      ReportConfig           `yaml:"report"`
	Searches    []Search               `yaml:"searches"`
	Store       StoreConfig            `yaml:"store"`
	Logging     logging.Config         `yaml:"logging"`
	MetricsAddr string                 `yaml:"metrics_addr"`
}

// APIConfig configures the upstream endpoint.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	AcquirePerAttempt bool          `yaml:"acquire_per_attempt"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	Top int `yaml:"top"`
}

// TopPlaceholder in a search title is replaced by the report size.
const TopPlaceholder = "{top}"

// Search is one query to ingest and report on. An empty Title is derived
// from the query.
type Search struct {
	Title  string `yaml:"title"`
	Type   string `yaml:"type"`
	Filter string `yaml:"filter"`
}

// Query returns the listing query of the search.
func (s Search) Query() listing.Query {
	return listing.Query{Type: s.Type, Filter: s.Filter}
}

// Heading returns the report heading for a report of top owners.
func (s Search) Heading(top int) string {
	if s.Title == "" {
		return report.Title(s.Query(), top)
	}
	return strings.ReplaceAll(s.Title, TopPlaceholder, strconv.Itoa(top))
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// NewDefaultConfig returns the configuration used when nothing is overridden.
// The API key has no default.
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			UserAgent: "listing-ingest/1.0",
			Timeout:   30 * time.Second,
		},
		RateLimit:  ratelimit.DefaultBucketConfig(),
		Retry:      client.DefaultRetryPolicy(),
		Pagination: pagination.DefaultConfig(),
		Report:     ReportConfig{Top: report.DefaultTop},
		Searches: []Search{
			{
				Title:  "Top {top} makelaars with 'koop' objects in Amsterdam",
				Type:   "koop",
				Filter: "/amsterdam/",
			},
			{
				Title:  "Top {top} makelaars with 'koop' objects with tuin in Amsterdam",
				Type:   "koop",
				Filter: "/amsterdam/tuin/",
			},
		},
		Store: StoreConfig{
			Backend:     BackendNone,
			RedisAddr:   "localhost:6379",
			SnapshotTTL: 24 * time.Hour,
		},
		Logging: logging.Config{
			Level: logging.LevelInfo,
		},
	}
}

// Load loads configuration from file and environment variables and
// validates every section.
func Load(configPath string) (*Config, error) {
	return load(configPath, (*Config).Validate)
}

// LoadOffline is Load for runs that render stored snapshots only. The api
// section is not validated since the upstream is never contacted.
func LoadOffline(configPath string) (*Config, error) {
	return load(configPath, (*Config).ValidateOffline)
}

func load(configPath string, validate func(*Config) error) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", filePath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *Config) error {
	if baseURL := os.Getenv("LISTING_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}

	if key := os.Getenv("LISTING_API_KEY"); key != "" {
		config.API.APIKey = key
	}

	if level := os.Getenv("LISTING_LOG_LEVEL"); level != "" {
		config.Logging.Level = logging.LogLevel(level)
	}

	if pretty := os.Getenv("LISTING_LOG_PRETTY"); pretty != "" {
		val, err := strconv.ParseBool(pretty)
		if err != nil {
			return &ConfigurationError{Field: "LISTING_LOG_PRETTY", Reason: fmt.Sprintf("not a boolean: %q", pretty)}
		}
		config.Logging.Pretty = val
	}

	if backend := os.Getenv("LISTING_STORE_BACKEND"); backend != "" {
		config.Store.Backend = backend
	}

	if addr := os.Getenv("LISTING_REDIS_ADDR"); addr != "" {
		config.Store.RedisAddr = addr
	}

	if dsn := os.Getenv("LISTING_POSTGRES_DSN"); dsn != "" {
		config.Store.PostgresDSN = dsn
	}

	if addr := os.Getenv("LISTING_METRICS_ADDR"); addr != "" {
		config.MetricsAddr = addr
	}

	return nil
}

// Validate checks every section and returns the first *ConfigurationError.
func (c *Config) Validate() error {
	if err := c.ValidateAPI(); err != nil {
		return err
	}
	return c.ValidateOffline()
}

// ValidateAPI checks the upstream endpoint settings.
func (c *Config) ValidateAPI() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return &ConfigurationError{Field: "api.base_url", Reason: "must not be empty"}
	}
	if err := client.ValidateAPIKey(c.API.APIKey); err != nil {
		return &ConfigurationError{Field: "api.api_key", Reason: err.Error()}
	}
	if c.API.Timeout < 0 {
		return &ConfigurationError{Field: "api.timeout", Reason: "must not be negative"}
	}
	return nil
}

// ValidateOffline checks every section except api.
func (c *Config) ValidateOffline() error {
	if err := c.RateLimit.Validate(); err != nil {
		return &ConfigurationError{Field: "rate_limit", Reason: err.Error()}
	}
	if err := c.Retry.Validate(); err != nil {
		return &ConfigurationError{Field: "retry", Reason: err.Error()}
	}

	if c.Pagination.PageSize <= 0 {
		return &ConfigurationError{Field: "pagination.page_size", Reason: "must be positive"}
	}
	if c.Report.Top <= 0 {
		return &ConfigurationError{Field: "report.top", Reason: "must be positive"}
	}

	if len(c.Searches) == 0 {
		return &ConfigurationError{Field: "searches", Reason: "at least one search is required"}
	}
	for i, s := range c.Searches {
		if strings.TrimSpace(s.Type) == "" {
			return &ConfigurationError{Field: fmt.Sprintf("searches[%d].type", i), Reason: "must not be empty"}
		}
		if strings.TrimSpace(s.Filter) == "" {
			return &ConfigurationError{Field: fmt.Sprintf("searches[%d].filter", i), Reason: "must not be empty"}
		}
	}

	switch c.Store.Backend {
	case "", BackendNone:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return &ConfigurationError{Field: "store.redis_addr", Reason: "required for redis backend"}
		}
		if c.Store.SnapshotTTL < 0 {
			return &ConfigurationError{Field: "store.snapshot_ttl", Reason: "must not be negative"}
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return &ConfigurationError{Field: "store.postgres_dsn", Reason: "required for postgres backend"}
		}
	default:
		return &ConfigurationError{Field: "store.backend", Reason: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}

	if !c.Logging.Level.Valid() {
		return &ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}

	return nil
}
