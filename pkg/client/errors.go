package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidAPIKey is returned when the API key does not have the expected format.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrDecode is returned when a successful response cannot be decoded.
	ErrDecode = errors.New("decode response")
)

// RateLimitReason is the reason phrase the upstream sends with a 401 when the
// caller exceeded its request budget.
const RateLimitReason = "Request limit exceeded"

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 and the upstream's 401 "Request limit exceeded".
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents failures below the HTTP layer.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError is a non-success HTTP response from the upstream API.
type UpstreamError struct {
	StatusCode int
	Reason     string
	URL        string
	Body       string
	Class      ErrorClass
	Retryable  bool
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s error (status %d", e.Class, e.StatusCode)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	msg += ")"
	if e.URL != "" {
		msg += " for " + e.URL
	}
	return msg
}

// TransportError is a failure below the HTTP layer (connection, DNS, timeout).
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// reasonPhrase extracts the reason phrase from the response status line.
func reasonPhrase(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

// classifyStatus categorizes a non-success status for metrics and retry decisions.
func classifyStatus(statusCode int, reason string) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode == http.StatusUnauthorized && reason == RateLimitReason:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry reports whether a response status is a transient fault.
func shouldRetry(statusCode int, reason string) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized:
		return reason == RateLimitReason
	default:
		return false
	}
}

// errorClassOf returns the class of a failure returned by a single attempt.
func errorClassOf(err error) ErrorClass {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Class
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return ErrorClassNetwork
	}
	return ""
}

// isRetryable reports whether a failure returned by a single attempt may be retried.
func isRetryable(err error) bool {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Retryable
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
