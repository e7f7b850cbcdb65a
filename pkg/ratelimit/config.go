// Package ratelimit implements the leaky-bucket admission controller that
// shapes outbound traffic to the upstream listing API.
//
// A single Bucket is shared by every fetch issued through one client. Each
// admission records a timestamp; a background leak worker removes up to
// LeakRate of the oldest timestamps every LeakInterval. Callers block in
// Acquire while the bucket holds MaxFill timestamps.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Defaults matching the upstream's documented budget of 100 calls per minute.
const (
	DefaultLeakRate     = 10
	DefaultLeakInterval = 6 * time.Second
	DefaultMaxFill      = 10
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxWait      = time.Hour
)

var (
	// ErrAcquireTimeout is returned when no capacity frees up before the deadline.
	ErrAcquireTimeout = errors.New("rate limit acquire timed out")

	// ErrBucketClosed is returned by Acquire once the bucket has been closed.
	ErrBucketClosed = errors.New("rate limit bucket closed")
)

// BucketConfig holds the immutable leaky-bucket parameters.
type BucketConfig struct {
	// LeakRate is the number of admissions released per LeakInterval.
	LeakRate int `yaml:"leak_rate"`

	// LeakInterval is the cadence of the leak worker.
	LeakInterval time.Duration `yaml:"leak_interval"`

	// MaxFill is the bucket capacity.
	MaxFill int `yaml:"max_fill"`

	// PollInterval is how often a blocked caller re-checks capacity, and how
	// often the idle leak worker checks for its first item.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxWait bounds Acquire when the context carries no deadline.
	// Zero means wait indefinitely.
	MaxWait time.Duration `yaml:"max_wait"`
}

// DefaultBucketConfig returns 10 admissions per 6 seconds with capacity 10.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		LeakRate:     DefaultLeakRate,
		LeakInterval: DefaultLeakInterval,
		MaxFill:      DefaultMaxFill,
		PollInterval: DefaultPollInterval,
		MaxWait:      DefaultMaxWait,
	}
}

// Validate checks the configuration invariants.
func (c BucketConfig) Validate() error {
	if c.LeakRate < 1 {
		return fmt.Errorf("leak rate must be >= 1 (got %d)", c.LeakRate)
	}
	if c.MaxFill < 1 {
		return fmt.Errorf("max fill must be >= 1 (got %d)", c.MaxFill)
	}
	if c.LeakInterval <= 0 {
		return fmt.Errorf("leak interval must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.PollInterval > c.LeakInterval {
		return fmt.Errorf("poll interval (%s) must not exceed leak interval (%s)", c.PollInterval, c.LeakInterval)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative")
	}
	return nil
}
