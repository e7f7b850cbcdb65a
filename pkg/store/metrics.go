package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

var (
	// StoreOperations tracks snapshot store operations by backend and result
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_store_operations_total",
			Help: "Total number of snapshot store operations",
		},
		[]string{"backend", "operation", "result"}, // result: "ok", "not_found", "error"
	)
)

func observe(backend, operation string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	StoreOperations.WithLabelValues(backend, operation, result).Inc()
}
