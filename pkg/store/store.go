// Package store persists finished ingestion runs so reports can be rendered
// again without calling the rate-limited upstream.
//
// Two backends are available:
//   - RedisStore keeps the latest snapshot per query as a JSON value with TTL
//   - PostgresStore keeps every run in listing_runs and listing_records
//
// Usage:
//
//	st, err := store.Open(ctx, cfg.Store, logger)
//	if err != nil {
//	    return err
//	}
//	if st != nil {
//	    defer st.Close()
//	    err = st.Save(ctx, store.NewSnapshot(query, rs))
//	}
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/config"
	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates no snapshot exists for the query.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshot indicates a stored snapshot could not be decoded.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Snapshot is the result of one ingestion run.
type Snapshot struct {
	RunID     uuid.UUID        `json:"run_id"`
	Query     listing.Query    `json:"query"`
	FetchedAt time.Time        `json:"fetched_at"`
	Records   []listing.Record `json:"records"`
}

// storedRecord is the persisted form of a listing.Record. Unlike the
// record's own JSON form it keeps the raw upstream object.
type storedRecord struct {
	ID        string          `json:"Id"`
	OwnerID   int64           `json:"MakelaarId"`
	OwnerName string          `json:"MakelaarNaam"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

type snapshotJSON struct {
	RunID     uuid.UUID      `json:"run_id"`
	Query     listing.Query  `json:"query"`
	FetchedAt time.Time      `json:"fetched_at"`
	Records   []storedRecord `json:"records"`
}

// MarshalJSON encodes the snapshot including each record's raw payload.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		RunID:     s.RunID,
		Query:     s.Query,
		FetchedAt: s.FetchedAt,
		Records:   make([]storedRecord, len(s.Records)),
	}
	for i, r := range s.Records {
		out.Records[i] = storedRecord{ID: r.ID, OwnerID: r.OwnerID, OwnerName: r.OwnerName, Raw: r.Raw}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a snapshot written by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.RunID = in.RunID
	s.Query = in.Query
	s.FetchedAt = in.FetchedAt
	s.Records = make([]listing.Record, len(in.Records))
	for i, r := range in.Records {
		s.Records[i] = listing.Record{ID: r.ID, OwnerID: r.OwnerID, OwnerName: r.OwnerName, Raw: r.Raw}
	}
	return nil
}

// NewSnapshot captures the members of rs under a fresh run id.
func NewSnapshot(query listing.Query, rs *listing.ResultSet) *Snapshot {
	return &Snapshot{
		RunID:     uuid.New(),
		Query:     query,
		FetchedAt: time.Now().UTC(),
		Records:   rs.Members(),
	}
}

// ResultSet rebuilds the deduplicated result set from the snapshot.
func (s *Snapshot) ResultSet() *listing.ResultSet {
	rs := listing.NewResultSet()
	rs.Merge(s.Records)
	return rs
}

// Store persists snapshots.
type Store interface {
	// Save stores the snapshot.
	Save(ctx context.Context, snap *Snapshot) error

	// Latest returns the most recent snapshot for the query or ErrNotFound.
	Latest(ctx context.Context, query listing.Query) (*Snapshot, error)

	// Close releases the backend connection.
	Close() error
}

// Open connects the configured backend. The "none" backend returns a nil
// Store and no error.
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return NewRedisStore(rdb, cfg.SnapshotTTL, logger), nil

	case config.BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		st := NewPostgresStore(pool, logger)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
