// Package testutil provides testing utilities for the listing ingestion client.
package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TestAPIKey is a well-formed 32-character key accepted by the mock.
const TestAPIKey = "0123456789abcdef0123456789abcdef"

// MockRecord is one listing object served by the mock.
type MockRecord struct {
	ID        string `json:"Id"`
	OwnerID   int64  `json:"MakelaarId"`
	OwnerName string `json:"MakelaarNaam"`
	Address   string `json:"Adres,omitempty"`
}

// MockResponse defines a scripted non-default response.
type MockResponse struct {
	StatusCode int
	// Reason overrides the status line reason phrase, e.g. "Request limit exceeded".
	Reason string
	Body   string
	Delay  time.Duration
}

// MockAPI is a configurable mock of the upstream listing API.
type MockAPI struct {
	server *httptest.Server
	apiKey string

	mu       sync.Mutex
	pages    map[string][][]MockRecord
	failures map[int][]MockResponse

	requestCount int
	pageRequests []int
	lastQuery    url.Values
	requestTimes []time.Time
}

// NewMockAPI starts a mock API that accepts the given API key.
func NewMockAPI(apiKey string) *MockAPI {
	m := &MockAPI{
		apiKey:   apiKey,
		pages:    make(map[string][][]MockRecord),
		failures: make(map[int][]MockResponse),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL to configure the client with.
func (m *MockAPI) URL() string {
	return m.server.URL + "/feeds/Aanbod.svc/json"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetPages configures the pages served for a search type and filter path.
// Pages beyond the configured ones are served empty.
func (m *MockAPI) SetPages(searchType, filter string, pages [][]MockRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageKey(searchType, filter)] = pages
}

// FailPage queues responses returned for the given page number before the
// page is served normally. Each queued response is used once.
func (m *MockAPI) FailPage(page int, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[page] = append(m.failures[page], responses...)
}

// RequestCount returns the number of requests received.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns the requested page numbers in arrival order.
func (m *MockAPI) PageRequests() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageRequests...)
}

// RequestTimes returns the arrival time of every request.
func (m *MockAPI) RequestTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.requestTimes...)
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockAPI) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))

	m.mu.Lock()
	m.requestCount++
	m.pageRequests = append(m.pageRequests, page)
	m.requestTimes = append(m.requestTimes, time.Now())
	m.lastQuery = query

	var scripted *MockResponse
	if queued := m.failures[page]; len(queued) > 0 {
		scripted = &queued[0]
		m.failures[page] = queued[1:]
	}
	pages := m.pages[pageKey(query.Get("type"), query.Get("zo"))]
	m.mu.Unlock()

	if !strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/"+m.apiKey) {
		WriteStatus(w, http.StatusUnauthorized, "", `{"error":"invalid key"}`)
		return
	}

	if scripted != nil {
		if scripted.Delay > 0 {
			time.Sleep(scripted.Delay)
		}
		WriteStatus(w, scripted.StatusCode, scripted.Reason, scripted.Body)
		return
	}

	pageSize, _ := strconv.Atoi(query.Get("pagesize"))
	objects := []MockRecord{}
	if page >= 1 && page <= len(pages) {
		objects = pages[page-1]
	}
	if pageSize > 0 && len(objects) > pageSize {
		objects = objects[:pageSize]
	}

	body, _ := json.Marshal(map[string]any{
		"Objects":              objects,
		"TotaalAantalObjecten": -1,
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// WriteStatus writes a response with an optional custom reason phrase.
// net/http always sends the standard reason, so a custom one is written on
// the hijacked connection.
func WriteStatus(w http.ResponseWriter, statusCode int, reason, body string) {
	if reason == "" || reason == http.StatusText(statusCode) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(statusCode)
		if body != "" {
			w.Write([]byte(body))
		}
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(statusCode)
		return
	}
	conn, buf, err := hijacker.Hijack()
	if err != nil {
		return
	}
	defer conn.Close()

	writeRawResponse(buf.Writer, statusCode, reason, body)
	buf.Flush()
}

func writeRawResponse(w *bufio.Writer, statusCode int, reason, body string) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", statusCode, reason)
	fmt.Fprintf(w, "Content-Type: application/json; charset=utf-8\r\n")
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(w, "Connection: close\r\n\r\n")
	w.WriteString(body)
}

func pageKey(searchType, filter string) string {
	return searchType + "|" + filter
}

// GenerateRecords returns n records with ids prefix-1..prefix-n owned by the given owner.
func GenerateRecords(prefix string, n int, ownerID int64, ownerName string) []MockRecord {
	records := make([]MockRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, MockRecord{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			OwnerID:   ownerID,
			OwnerName: ownerName,
		})
	}
	return records
}

// RateLimitResponse is the upstream's nonstandard rate limit signal.
func RateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Reason:     "Request limit exceeded",
	}
}

// ServerErrorResponse creates a 503 Service Unavailable response.
func ServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "Service unavailable"}`,
	}
}

// NotFoundResponse creates a 404 Not Found response.
func NotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
	}
}
