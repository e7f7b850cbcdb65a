// Package client provides the resilient request executor for the upstream
// listing API: every page fetch passes the shared rate limit bucket and is
// retried with exponential backoff on transient faults.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/Sternrassler/listing-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_requests_total",
		Help: "Total upstream requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listing_request_duration_seconds",
		Help:    "Upstream page fetch duration in seconds, including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

// ValidateAPIKey checks the fixed 32-character key format.
func ValidateAPIKey(key string) error {
	if !apiKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: expected 32 alphanumeric characters (got %d characters)", ErrInvalidAPIKey, len(key))
	}
	return nil
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the listing feed endpoint; the API key is appended as a path segment.
	BaseURL string

	// APIKey is embedded in the request path.
	APIKey string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Bucket is the shared admission controller. Required.
	Bucket *ratelimit.Bucket

	// Retry policy for transient faults.
	Retry RetryPolicy

	// AcquirePerAttempt makes every retry take its own bucket slot. By default
	// one slot covers the page fetch including its retries.
	AcquirePerAttempt bool

	// Logger receives request and retry events.
	Logger zerolog.Logger
}

// DefaultConfig returns the default configuration for the given bucket and endpoint.
func DefaultConfig(bucket *ratelimit.Bucket, baseURL, apiKey string) Config {
	return Config{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		UserAgent: "listing-ingest/1.0",
		Timeout:   30 * time.Second,
		Bucket:    bucket,
		Retry:     DefaultRetryPolicy(),
		Logger:    log.Logger,
	}
}

// Client fetches pages of listings from the upstream API.
type Client struct {
	httpClient *http.Client
	bucket     *ratelimit.Bucket
	config     Config
	endpoint   string
	redacted   string
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Bucket == nil {
		return nil, fmt.Errorf("rate limit bucket is required")
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if err := ValidateAPIKey(cfg.APIKey); err != nil {
		return nil, err
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base = strings.TrimRight(base, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		bucket:   cfg.Bucket,
		config:   cfg,
		endpoint: base + "/" + cfg.APIKey + "/",
		redacted: base + "/***/",
		logger:   cfg.Logger.With().Str("component", "listing-client").Logger(),
	}, nil
}

// FetchPage fetches one page of listings.
//
// The bucket is acquired once per call unless AcquirePerAttempt is set.
// Transient faults are retried per the retry policy; any other non-success
// status fails immediately with *UpstreamError.
func (c *Client) FetchPage(ctx context.Context, req listing.PageRequest) ([]listing.Record, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	query := pageQuery(req)
	target := c.endpoint + "?" + query
	logURL := c.redacted + "?" + query

	logger := c.logger.With().
		Str("query", req.Query.String()).
		Int("page", req.Page).
		Logger()

	logger.Info().Str("url", logURL).Msg("Loading page")

	var body []byte
	err := retryWithBackoff(ctx, c.config.Retry, logger, func(attempt int) error {
		if attempt == 0 || c.config.AcquirePerAttempt {
			if err := c.bucket.Acquire(ctx); err != nil {
				return fmt.Errorf("rate limit acquire: %w", err)
			}
		}

		logger.Debug().Int("attempt", attempt+1).Msg("Executing request")

		var attemptErr error
		body, attemptErr = c.do(ctx, target, logURL)
		return attemptErr
	})
	if err != nil {
		logger.Error().Err(err).Msg("Page fetch failed")
		return nil, err
	}

	records, err := decodePage(body)
	if err != nil {
		logger.Error().Err(err).Msg("Page decode failed")
		return nil, err
	}

	logger.Debug().Int("records", len(records)).Msg("Page loaded")
	return records, nil
}

// do executes a single HTTP attempt and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, target, logURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("url", logURL).Msg("HTTP request failed")
		// url.Error repeats the full URL, which carries the API key
		if urlErr, ok := err.(*url.Error); ok {
			err = urlErr.Err
		}
		return nil, &TransportError{URL: logURL, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := reasonPhrase(resp)
		class := classifyStatus(resp.StatusCode, reason)
		errorsTotal.WithLabelValues(string(class)).Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger.Warn().
			Str("url", logURL).
			Int("status", resp.StatusCode).
			Str("reason", reason).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Reason:     reason,
			URL:        logURL,
			Body:       string(snippet),
			Class:      class,
			Retryable:  shouldRetry(resp.StatusCode, reason),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{URL: logURL, Err: fmt.Errorf("read response body: %w", err)}
	}
	return body, nil
}

// pageQuery renders the query string for a page request.
func pageQuery(req listing.PageRequest) string {
	values := url.Values{}
	values.Set("type", req.Type)
	values.Set("zo", req.Filter)
	values.Set("page", strconv.Itoa(req.Page))
	values.Set("pagesize", strconv.Itoa(req.PageSize))
	return values.Encode()
}

// searchResult is the upstream response envelope.
type searchResult struct {
	Objects *[]json.RawMessage `json:"Objects"`
}

// decodePage decodes the listing array of a response body.
func decodePage(body []byte) ([]listing.Record, error) {
	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if result.Objects == nil {
		return nil, fmt.Errorf("%w: missing Objects array", ErrDecode)
	}

	records := make([]listing.Record, 0, len(*result.Objects))
	for i, raw := range *result.Objects {
		rec, err := listing.DecodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: object %d: %w", ErrDecode, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
