// Package partition reads, merges and writes per-year bookmark partitions and
// manages the completion marker of a user.
package partition

import "github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"

// Partition is the persisted document of one (username, year) pair.
type Partition struct {
	Bookmarks []bookmark.Record `json:"bookmarks"`
}

// Merge folds incoming records into existing ones. A record whose eid is
// already present replaces it in place, star tally included; others are
// appended in incoming order. The existing slice is not modified.
func Merge(existing, incoming []bookmark.Record) []bookmark.Record {
	out := make([]bookmark.Record, len(existing), len(existing)+len(incoming))
	copy(out, existing)

	index := make(map[string]int, len(out)+len(incoming))
	for i, rec := range out {
		index[rec.EID] = i
	}

	for _, rec := range incoming {
		if i, ok := index[rec.EID]; ok {
			out[i] = rec
			continue
		}
		index[rec.EID] = len(out)
		out = append(out, rec)
	}
	return out
}
