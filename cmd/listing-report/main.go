// Command listing-report ingests the configured listing searches and prints
// the top owners per search.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/client"
	"github.com/Sternrassler/listing-ingest/pkg/config"
	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/Sternrassler/listing-ingest/pkg/logging"
	"github.com/Sternrassler/listing-ingest/pkg/metrics"
	"github.com/Sternrassler/listing-ingest/pkg/pagination"
	"github.com/Sternrassler/listing-ingest/pkg/ratelimit"
	"github.com/Sternrassler/listing-ingest/pkg/report"
	"github.com/Sternrassler/listing-ingest/pkg/store"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code. Reports are
// written to stdout only when every search succeeded.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("listing-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file")
	offline := fs.Bool("offline", false, "render from the latest stored snapshots instead of fetching")
	top := fs.Int("top", 0, "number of owners per report (overrides configuration)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.Setup(logging.Config{Level: logging.LevelInfo, Output: stderr})

	load := config.Load
	if *offline {
		load = config.LoadOffline
	}
	cfg, err := load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if *top > 0 {
		cfg.Report.Top = *top
	}

	cfg.Logging.Output = stderr
	logger = logging.Setup(cfg.Logging)

	var out bytes.Buffer
	if err := execute(ctx, cfg, *offline, &out, logger); err != nil {
		logger.Error().Err(err).Msg("Listing report failed")
		return 1
	}

	if _, err := out.WriteTo(stdout); err != nil {
		logger.Error().Err(err).Msg("Failed to write report")
		return 1
	}
	return 0
}

func execute(ctx context.Context, cfg *config.Config, offline bool, out io.Writer, logger zerolog.Logger) error {
	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
		go srv.Serve()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if st != nil {
		defer st.Close()
	}

	queries := make([]listing.Query, len(cfg.Searches))
	for i, s := range cfg.Searches {
		queries[i] = s.Query()
	}

	var results []*listing.ResultSet
	if offline {
		results, err = loadSnapshots(ctx, st, queries)
	} else {
		results, err = fetch(ctx, cfg, queries, st, logger)
	}
	if err != nil {
		return err
	}

	for i, s := range cfg.Searches {
		title := s.Heading(cfg.Report.Top)
		owners := report.TopOwners(results[i], cfg.Report.Top)
		if err := report.Render(out, title, owners, results[i].Len()); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
	}
	return nil
}

func fetch(ctx context.Context, cfg *config.Config, queries []listing.Query, st store.Store, logger zerolog.Logger) ([]*listing.ResultSet, error) {
	bucket, err := ratelimit.NewBucket(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("create rate limit bucket: %w", err)
	}
	defer bucket.Close()

	clientCfg := client.DefaultConfig(bucket, cfg.API.BaseURL, cfg.API.APIKey)
	if cfg.API.UserAgent != "" {
		clientCfg.UserAgent = cfg.API.UserAgent
	}
	if cfg.API.Timeout > 0 {
		clientCfg.Timeout = cfg.API.Timeout
	}
	clientCfg.Retry = cfg.Retry
	clientCfg.AcquirePerAttempt = cfg.API.AcquirePerAttempt
	clientCfg.Logger = logger

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	logger.Info().Int("searches", len(queries)).Msg("Start retrieving listings")

	engine := pagination.NewEngine(c, cfg.Pagination, logger)
	results, err := engine.FetchMany(ctx, queries)
	if err != nil {
		return nil, err
	}

	if st != nil {
		for i, q := range queries {
			if err := st.Save(ctx, store.NewSnapshot(q, results[i])); err != nil {
				logger.Warn().Err(err).Str("query", q.String()).Msg("Failed to save snapshot")
			}
		}
	}

	logger.Info().Msg("Done retrieving listings")
	return results, nil
}

func loadSnapshots(ctx context.Context, st store.Store, queries []listing.Query) ([]*listing.ResultSet, error) {
	if st == nil {
		return nil, errors.New("offline mode requires a store backend")
	}

	results := make([]*listing.ResultSet, len(queries))
	for i, q := range queries {
		snap, err := st.Latest(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("load snapshot for %s: %w", q, err)
		}
		results[i] = snap.ResultSet()
	}
	return results, nil
}
