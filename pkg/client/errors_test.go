package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{
		StatusCode: 401,
		Reason:     RateLimitReason,
		URL:        "http://api/***/?page=1",
		Class:      ErrorClassRateLimit,
	}

	msg := err.Error()
	for _, want := range []string{"rate_limit", "401", RateLimitReason, "http://api/***/?page=1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("fetch: %w", &TransportError{URL: "http://api", Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the underlying cause")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatal("errors.As should find TransportError")
	}
	if transportErr.URL != "http://api" {
		t.Errorf("URL = %q", transportErr.URL)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   bool
	}{
		{500, "Internal Server Error", true},
		{502, "Bad Gateway", true},
		{503, "Service Unavailable", true},
		{504, "Gateway Timeout", true},
		{429, "Too Many Requests", true},
		{401, RateLimitReason, true},
		{401, "Unauthorized", false},
		{401, "request limit exceeded", false},
		{400, "Bad Request", false},
		{403, "Forbidden", false},
		{404, "Not Found", false},
		{501, "Not Implemented", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.reason), func(t *testing.T) {
			if got := shouldRetry(tt.status, tt.reason); got != tt.want {
				t.Errorf("shouldRetry(%d, %q) = %v, want %v", tt.status, tt.reason, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		want   ErrorClass
	}{
		{"too many requests", 429, "Too Many Requests", ErrorClassRateLimit},
		{"request limit exceeded", 401, RateLimitReason, ErrorClassRateLimit},
		{"plain unauthorized", 401, "Unauthorized", ErrorClassClient},
		{"not found", 404, "Not Found", ErrorClassClient},
		{"server error", 500, "Internal Server Error", ErrorClassServer},
		{"unavailable", 503, "Service Unavailable", ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status, tt.reason); got != tt.want {
				t.Errorf("classifyStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReasonPhrase(t *testing.T) {
	tests := []struct {
		status string
		code   int
		want   string
	}{
		{"401 Request limit exceeded", 401, RateLimitReason},
		{"404 Not Found", 404, "Not Found"},
		{"500", 500, ""},
	}

	for _, tt := range tests {
		resp := &http.Response{Status: tt.status, StatusCode: tt.code}
		if got := reasonPhrase(resp); got != tt.want {
			t.Errorf("reasonPhrase(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable upstream", &UpstreamError{StatusCode: 503, Retryable: true}, true},
		{"terminal upstream", &UpstreamError{StatusCode: 404}, false},
		{"transport", &TransportError{Err: errors.New("reset")}, true},
		{"wrapped transport", fmt.Errorf("x: %w", &TransportError{Err: errors.New("reset")}), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
