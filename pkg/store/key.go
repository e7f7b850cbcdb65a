package store

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
)

const keyPrefix = "listing:snapshot"

// Key generates the deterministic Redis key of the latest snapshot.
// Format: listing:snapshot:type=<type>:zo=<filter>
//
// Example:
//
//	listing:snapshot:type=koop:zo=/amsterdam/tuin/
func Key(query listing.Query) string {
	parts := []string{
		keyPrefix,
		fmt.Sprintf("type=%s", strings.TrimSpace(query.Type)),
		fmt.Sprintf("zo=%s", strings.TrimSpace(query.Filter)),
	}
	return strings.Join(parts, ":")
}
