// Package listing defines the domain types shared by the ingestion pipeline:
// listing records, search queries, page requests and the deduplicating
// result set that accumulates records across pages.
package listing

import (
	"encoding/json"
	"fmt"
)

// DefaultPageSize is the largest page the upstream API returns.
const DefaultPageSize = 25

// Record is a single listing as returned by the upstream API.
// Identity is defined solely by ID.
type Record struct {
	// ID is the unique listing identifier.
	ID string `json:"Id"`

	// OwnerID identifies the listing agent.
	OwnerID int64 `json:"MakelaarId"`

	// OwnerName is the display name of the listing agent.
	OwnerName string `json:"MakelaarNaam"`

	// Raw holds the complete upstream object, including fields the
	// pipeline does not interpret.
	Raw json.RawMessage `json:"-"`
}

// DecodeRecord decodes one upstream listing object and keeps the raw payload.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode listing: %w", err)
	}
	if rec.ID == "" {
		return Record{}, fmt.Errorf("decode listing: missing Id")
	}
	rec.Raw = append(json.RawMessage(nil), data...)
	return rec, nil
}

// Query selects a listing search on the upstream API.
type Query struct {
	// Type is the search type, e.g. "koop" or "huur".
	Type string `json:"type" yaml:"type"`

	// Filter is the filter path, e.g. "/amsterdam/tuin/".
	Filter string `json:"filter" yaml:"filter"`
}

// String renders the query for log lines.
func (q Query) String() string {
	return fmt.Sprintf("type=%s zo=%s", q.Type, q.Filter)
}

// PageRequest addresses one page of a query.
type PageRequest struct {
	Query

	// PageSize is the requested upper bound of records per page.
	PageSize int

	// Page is the 1-based page number.
	Page int
}
