package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS listing_runs (
	run_id       UUID PRIMARY KEY,
	search_type  TEXT NOT NULL,
	filter       TEXT NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL,
	record_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS listing_runs_query_idx
	ON listing_runs (search_type, filter, fetched_at DESC);

CREATE TABLE IF NOT EXISTS listing_records (
	run_id     UUID NOT NULL REFERENCES listing_runs (run_id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	record_id  TEXT NOT NULL,
	owner_id   BIGINT NOT NULL,
	owner_name TEXT NOT NULL,
	raw        JSON,
	PRIMARY KEY (run_id, record_id)
);
`

// PostgresStore keeps every run and its records in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore creates a snapshot store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "store").Str("backend", backendPostgres).Logger(),
	}
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save inserts the run and its records in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) (err error) {
	defer func() { observe(backendPostgres, "save", err) }()

	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO listing_runs (run_id, search_type, filter, fetched_at, record_count)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.RunID, snap.Query.Type, snap.Query.Filter, snap.FetchedAt, len(snap.Records),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	b := &pgx.Batch{}
	for i, r := range snap.Records {
		b.Queue(
			`INSERT INTO listing_records (run_id, position, record_id, owner_id, owner_name, raw)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (run_id, record_id) DO NOTHING`,
			snap.RunID, i, r.ID, r.OwnerID, r.OwnerName, rawValue(r.Raw),
		)
	}

	if b.Len() > 0 {
		br := tx.SendBatch(ctx, b)
		for k := 0; k < b.Len(); k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert record %d: %w", k, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug().
		Str("run_id", snap.RunID.String()).
		Int("records", len(snap.Records)).
		Msg("Snapshot saved")

	return nil
}

// Latest returns the newest run for the query with its records in insertion order.
func (s *PostgresStore) Latest(ctx context.Context, query listing.Query) (snap *Snapshot, err error) {
	defer func() { observe(backendPostgres, "latest", err) }()

	out := Snapshot{Query: query}
	err = s.pool.QueryRow(ctx,
		`SELECT run_id, fetched_at FROM listing_runs
		WHERE search_type = $1 AND filter = $2
		ORDER BY fetched_at DESC
		LIMIT 1`,
		query.Type, query.Filter,
	).Scan(&out.RunID, &out.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT record_id, owner_id, owner_name, raw FROM listing_records
		WHERE run_id = $1
		ORDER BY position`,
		out.RunID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}

	out.Records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (listing.Record, error) {
		var r listing.Record
		var raw []byte
		if err := row.Scan(&r.ID, &r.OwnerID, &r.OwnerName, &raw); err != nil {
			return r, err
		}
		if raw != nil {
			r.Raw = json.RawMessage(raw)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	return &out, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// rawValue maps a missing payload to SQL NULL; the column is json, which
// keeps the upstream text verbatim.
func rawValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
