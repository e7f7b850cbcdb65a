package listing

import "iter"

// ResultSet is an insertion-ordered set of records keyed by ID.
//
// A record whose ID is already present is dropped: it is not reordered and
// does not replace the stored record. A ResultSet is owned by a single
// ingestion run and is not safe for concurrent use.
type ResultSet struct {
	index   map[string]struct{}
	records []Record
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{
		index: make(map[string]struct{}),
	}
}

// Insert adds rec unless a member with the same ID exists.
// Returns true if the record was added.
func (s *ResultSet) Insert(rec Record) bool {
	if _, ok := s.index[rec.ID]; ok {
		return false
	}
	s.index[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

// Merge inserts every record in order and returns how many were added.
func (s *ResultSet) Merge(records []Record) int {
	added := 0
	for _, rec := range records {
		if s.Insert(rec) {
			added++
		}
	}
	return added
}

// Contains reports whether a member with the given ID exists.
func (s *ResultSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of members.
func (s *ResultSet) Len() int {
	return len(s.records)
}

// Members returns a copy of the members in insertion order.
func (s *ResultSet) Members() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// All iterates the members in insertion order.
func (s *ResultSet) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range s.records {
			if !yield(rec) {
				return
			}
		}
	}
}
