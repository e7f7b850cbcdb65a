// Package report aggregates ingested listings per owner and renders the
// ranked owner table.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/Sternrassler/listing-ingest/pkg/listing"
)

// DefaultTop is the number of owners shown when no limit is configured.
const DefaultTop = 10

const rowFormat = "%3v %-40v %10v\n"

// Owner is one listing owner with the number of listings attributed to it.
type Owner struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Listings int    `json:"listings"`
}

// TopOwners groups the records by owner and returns the n owners with the
// most listings. The owner name is taken from the first record seen. Owners
// with equal counts keep first-seen order. n <= 0 returns every owner.
func TopOwners(rs *listing.ResultSet, n int) []Owner {
	if rs == nil {
		return nil
	}

	index := make(map[int64]int)
	var owners []Owner
	for rec := range rs.All() {
		i, ok := index[rec.OwnerID]
		if !ok {
			i = len(owners)
			index[rec.OwnerID] = i
			owners = append(owners, Owner{ID: rec.OwnerID, Name: rec.OwnerName})
		}
		owners[i].Listings++
	}

	sort.SliceStable(owners, func(a, b int) bool {
		return owners[a].Listings > owners[b].Listings
	})

	if n > 0 && len(owners) > n {
		owners = owners[:n]
	}
	return owners
}

// Title returns the default heading for a query's report.
func Title(query listing.Query, n int) string {
	return fmt.Sprintf("Top %d owners with '%s' listings in %s", n, query.Type, query.Filter)
}

// Render writes the owner table:
//
//	<title>
//
//	  # Owner                                      Listings
//	  1 Some Owner                                       42
//
//	Total number of listings in selection: N.
func Render(w io.Writer, title string, owners []Owner, total int) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, title)
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, rowFormat, "#", "Owner", "Listings")
	for i, o := range owners {
		fmt.Fprintf(bw, rowFormat, i+1, o.Name, o.Listings)
	}
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Total number of listings in selection: %d.\n", total)

	return bw.Flush()
}
