package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for ingestion runs.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_pages_fetched_total",
		Help: "Total number of pages fetched by ingestion runs",
	})

	recordsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_records_merged_total",
		Help: "Total number of unique records merged into result sets",
	})

	duplicatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_duplicates_dropped_total",
		Help: "Total number of duplicate records dropped during merge",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_runs_total",
		Help: "Total number of ingestion runs by result",
	}, []string{"result"})
)

// Config holds pagination configuration.
type Config struct {
	// PageSize is the number of records requested per page. The upstream
	// never returns more than this.
	PageSize int `yaml:"page_size"`
}

// DefaultConfig returns the upstream's maximum page size.
func DefaultConfig() Config {
	return Config{
		PageSize: listing.DefaultPageSize,
	}
}

// PageFetcher fetches a single page of records.
type PageFetcher interface {
	FetchPage(ctx context.Context, req listing.PageRequest) ([]listing.Record, error)
}

// Engine runs ingestion for listing queries.
type Engine struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewEngine creates a new pagination engine.
func NewEngine(fetcher PageFetcher, config Config, logger zerolog.Logger) *Engine {
	if config.PageSize <= 0 {
		config.PageSize = listing.DefaultPageSize
	}

	return &Engine{
		fetcher: fetcher,
		config:  config,
		logger:  logger.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll fetches every page of the query and returns the merged records.
// Any page failure aborts the run; no partial result is returned.
func (e *Engine) FetchAll(ctx context.Context, query listing.Query) (*listing.ResultSet, error) {
	start := time.Now()
	logger := e.logger.With().
		Str("run_id", uuid.NewString()).
		Str("query", query.String()).
		Logger()

	logger.Info().Int("page_size", e.config.PageSize).Msg("Starting ingestion run")

	results := listing.NewResultSet()

	for page := 1; ; page++ {
		records, err := e.fetcher.FetchPage(ctx, listing.PageRequest{
			Query:    query,
			PageSize: e.config.PageSize,
			Page:     page,
		})
		if err != nil {
			runsTotal.WithLabelValues("failed").Inc()
			logger.Error().
				Err(err).
				Int("page", page).
				Int("merged", results.Len()).
				Msg("Ingestion run failed")
			return nil, fmt.Errorf("fetch page %d of %s: %w", page, query, err)
		}

		added := results.Merge(records)
		pagesFetchedTotal.Inc()
		recordsMergedTotal.Add(float64(added))
		if dropped := len(records) - added; dropped > 0 {
			duplicatesDroppedTotal.Add(float64(dropped))
			logger.Debug().
				Int("page", page).
				Int("duplicates", dropped).
				Msg("Dropped duplicate records")
		}

		logger.Debug().
			Int("page", page).
			Int("records", len(records)).
			Int("merged", results.Len()).
			Msg("Page merged")

		if len(records) != e.config.PageSize {
			runsTotal.WithLabelValues("completed").Inc()
			logger.Info().
				Int("pages", page).
				Int("records", results.Len()).
				Dur("duration", time.Since(start)).
				Msg("Ingestion run complete")
			return results, nil
		}
	}
}

// FetchMany runs FetchAll for each query concurrently. Results are indexed
// like queries. The first failure cancels the remaining runs and is returned.
func (e *Engine) FetchMany(ctx context.Context, queries []listing.Query) ([]*listing.ResultSet, error) {
	results := make([]*listing.ResultSet, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		g.Go(func() error {
			rs, err := e.FetchAll(gctx, query)
			if err != nil {
				return err
			}
			results[i] = rs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
