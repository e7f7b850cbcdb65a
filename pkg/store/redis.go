package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultSnapshotTTL is used when no TTL is configured.
const DefaultSnapshotTTL = 24 * time.Hour

// RedisStore keeps the latest snapshot per query in Redis.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a snapshot store with Redis backend.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "store").Str("backend", backendRedis).Logger(),
	}
}

// Save stores the snapshot as the latest one for its query.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) (err error) {
	defer func() { observe(backendRedis, "save", err) }()

	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := Key(snap.Query)
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("run_id", snap.RunID.String()).
		Dur("ttl", s.ttl).
		Int("records", len(snap.Records)).
		Msg("Snapshot saved")

	return nil
}

// Latest returns the snapshot stored for the query.
// Returns ErrNotFound if the key doesn't exist or has expired.
func (s *RedisStore) Latest(ctx context.Context, query listing.Query) (snap *Snapshot, err error) {
	defer func() { observe(backendRedis, "latest", err) }()

	data, err := s.redis.Get(ctx, Key(query)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	return &out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
