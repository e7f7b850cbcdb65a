package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the admission controller.
var (
	bucketFill = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listing_bucket_fill",
		Help: "Number of admissions currently held in the rate limit bucket",
	})

	bucketAdmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_bucket_admissions_total",
		Help: "Total number of requests admitted by the rate limit bucket",
	})

	bucketLeakedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_bucket_leaked_total",
		Help: "Total number of admissions drained by the leak worker",
	})

	bucketTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_bucket_timeouts_total",
		Help: "Total number of acquire calls that timed out waiting for capacity",
	})

	bucketWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listing_bucket_wait_seconds",
		Help:    "Time spent waiting for rate limit capacity",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Bucket is a leaky-bucket admission controller. It is safe for concurrent use.
type Bucket struct {
	config BucketConfig
	logger zerolog.Logger

	mu      sync.Mutex
	items   []time.Time
	started bool
	closed  bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewBucket creates a bucket. The leak worker starts on the first Acquire.
func NewBucket(cfg BucketConfig, logger zerolog.Logger) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bucket config: %w", err)
	}

	return &Bucket{
		config: cfg,
		logger: logger.With().Str("component", "rate-limiter").Logger(),
		items:  make([]time.Time, 0, cfg.MaxFill),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Config returns the bucket configuration.
func (b *Bucket) Config() BucketConfig {
	return b.config
}

// Len returns the number of admissions currently held.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Acquire blocks until the bucket has capacity and records an admission.
//
// The wait is bounded by the context deadline, or by MaxWait when the context
// has none. It returns ErrAcquireTimeout when the deadline passes,
// the wrapped context error on cancellation, and ErrBucketClosed after Close.
func (b *Bucket) Acquire(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && b.config.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.MaxWait)
		defer cancel()
	}

	b.startOnce.Do(b.startLeak)

	start := time.Now()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		admitted, err := b.tryAdmit()
		if err != nil {
			return err
		}
		if admitted {
			waited := time.Since(start)
			bucketWaitSeconds.Observe(waited.Seconds())
			if waited >= b.config.PollInterval {
				b.logger.Debug().Dur("waited", waited).Msg("Admitted after waiting for capacity")
			}
			return nil
		}

		if timer == nil {
			timer = time.NewTimer(b.config.PollInterval)
		} else {
			timer.Reset(b.config.PollInterval)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				bucketTimeoutsTotal.Inc()
				b.logger.Warn().Dur("waited", time.Since(start)).Msg("Timed out waiting for rate limit capacity")
				return fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
			}
			return fmt.Errorf("acquire: %w", ctx.Err())
		case <-b.stop:
			return ErrBucketClosed
		case <-timer.C:
		}
	}
}

// AcquireTimeout is Acquire with an explicit timeout.
func (b *Bucket) AcquireTimeout(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.Acquire(ctx)
}

// tryAdmit performs the capacity check and insertion as one critical section.
func (b *Bucket) tryAdmit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrBucketClosed
	}
	if len(b.items) >= b.config.MaxFill {
		return false, nil
	}

	b.items = append(b.items, time.Now())
	bucketAdmissionsTotal.Inc()
	bucketFill.Set(float64(len(b.items)))
	return true, nil
}

// Close stops the leak worker and fails pending and future Acquire calls.
// It is safe to call more than once.
func (b *Bucket) Close() {
	b.mu.Lock()
	b.closed = true
	started := b.started
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stop) })

	if started {
		<-b.done
	}
}

func (b *Bucket) startLeak() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.started = true
	go b.leak()
}

// leak idles at PollInterval until the first admission arrives, then drains
// up to LeakRate of the oldest admissions every LeakInterval until stopped.
func (b *Bucket) leak() {
	defer close(b.done)

	poll := time.NewTicker(b.config.PollInterval)
	for b.Len() == 0 {
		select {
		case <-b.stop:
			poll.Stop()
			return
		case <-poll.C:
		}
	}
	poll.Stop()

	b.logger.Debug().
		Int("leak_rate", b.config.LeakRate).
		Dur("leak_interval", b.config.LeakInterval).
		Msg("Leak worker started")

	ticker := time.NewTicker(b.config.LeakInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			b.logger.Debug().Msg("Leak worker stopped")
			return
		case <-ticker.C:
			b.drain()
		}
	}
}

// drain removes up to LeakRate admissions from the front, regardless of age.
func (b *Bucket) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(b.config.LeakRate, len(b.items))
	if n == 0 {
		return
	}

	remaining := copy(b.items, b.items[n:])
	clear(b.items[remaining:])
	b.items = b.items[:remaining]

	bucketLeakedTotal.Add(float64(n))
	bucketFill.Set(float64(len(b.items)))
}
