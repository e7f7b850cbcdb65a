// Package metrics provides the Prometheus registry and scrape endpoint for
// the listing ingestion client. All metrics are defined in their respective
// packages (ratelimit, client, pagination, store) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves the metrics endpoint on its own listener.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// Listen binds addr and returns a server exposing /metrics. Serve must be
// called to start handling requests.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger.With().Str("component", "metrics").Logger(),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve handles requests until Shutdown is called.
func (s *Server) Serve() {
	s.logger.Info().Str("addr", s.Addr()).Msg("Metrics listener started")
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("Metrics listener failed")
	}
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.logger.Info().Msg("Metrics listener stopped")
	return err
}

// Metrics Documentation
//
// Admission Metrics (pkg/ratelimit):
//   - listing_bucket_fill (Gauge): Current number of admissions held by the bucket
//   - listing_bucket_admissions_total (Counter): Admissions granted
//   - listing_bucket_leaked_total (Counter): Admissions released by the leak worker
//   - listing_bucket_timeouts_total (Counter): Acquire calls that gave up waiting
//   - listing_bucket_wait_seconds (Histogram): Time spent waiting for admission
//
// Request Metrics (pkg/client):
//   - listing_requests_total{status} (Counter): Requests by HTTP status
//   - listing_request_duration_seconds (Histogram): Request duration
//   - listing_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - listing_retries_total{error_class} (Counter): Retry attempts by error class
//   - listing_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - listing_retry_exhausted_total{error_class} (Counter): Page fetches that exhausted max retries
//
// Run Metrics (pkg/pagination):
//   - listing_pages_fetched_total (Counter): Pages fetched
//   - listing_records_merged_total (Counter): Unique records merged
//   - listing_duplicates_dropped_total (Counter): Duplicate records dropped
//   - listing_runs_total{result} (Counter): Runs by result (completed, failed)
//
// Store Metrics (pkg/store):
//   - listing_store_operations_total{backend, operation, result} (Counter): Snapshot store operations
//
// Example Prometheus Queries:
//
//   # Duplicate Rate
//   rate(listing_duplicates_dropped_total[5m]) /
//   (rate(listing_records_merged_total[5m]) + rate(listing_duplicates_dropped_total[5m]))
//
//   # Rate Limit Pressure
//   rate(listing_errors_total{class="rate_limit"}[5m])
//
//   # P95 Admission Wait
//   histogram_quantile(0.95, rate(listing_bucket_wait_seconds_bucket[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(listing_request_duration_seconds_bucket[5m]))
