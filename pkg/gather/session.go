package gather

import (
	"sort"

	"github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"
)

// session is the working state of one Gather call. It is created per call
// and handed to each stage explicitly.
type session struct {
	id       string
	username string

	// buckets holds records per partition year in fetch order.
	buckets map[int][]bookmark.Record
	// index locates each eid in buckets.
	index map[string]recordPos

	hasNextPage bool
	conclusive  bool
	persisted   bool

	rejected   int
	duplicates int
}

type recordPos struct {
	year int
	i    int
}

func newSession(id, username string) *session {
	return &session{
		id:       id,
		username: username,
		buckets:  make(map[int][]bookmark.Record),
		index:    make(map[string]recordPos),
	}
}

// add buckets rec by year. An eid seen before is replaced by the later copy,
// which can move it to another year.
func (s *session) add(rec bookmark.Record) {
	year := bookmark.PartitionYear(rec.Created)

	if pos, ok := s.index[rec.EID]; ok {
		s.duplicates++
		if pos.year == year {
			s.buckets[year][pos.i] = rec
			return
		}
		s.remove(pos)
	}

	s.index[rec.EID] = recordPos{year: year, i: len(s.buckets[year])}
	s.buckets[year] = append(s.buckets[year], rec)
}

func (s *session) remove(pos recordPos) {
	bucket := s.buckets[pos.year]
	bucket = append(bucket[:pos.i], bucket[pos.i+1:]...)
	if len(bucket) == 0 {
		delete(s.buckets, pos.year)
		return
	}
	s.buckets[pos.year] = bucket
	for i := pos.i; i < len(bucket); i++ {
		s.index[bucket[i].EID] = recordPos{year: pos.year, i: i}
	}
}

// earliest returns the smallest created timestamp held, 0 when empty.
func (s *session) earliest() int64 {
	var min int64
	for _, bucket := range s.buckets {
		for _, rec := range bucket {
			if min == 0 || rec.Created < min {
				min = rec.Created
			}
		}
	}
	return min
}

// years returns the touched years in ascending order.
func (s *session) years() []int {
	years := make([]int, 0, len(s.buckets))
	for y := range s.buckets {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// pointers returns addresses of every bucketed record so stages can update
// them in place.
func (s *session) pointers() []*bookmark.Record {
	var out []*bookmark.Record
	for _, y := range s.years() {
		bucket := s.buckets[y]
		for i := range bucket {
			out = append(out, &bucket[i])
		}
	}
	return out
}

// flatten returns all records, year ascending, then fetch order.
func (s *session) flatten() []bookmark.Record {
	var out []bookmark.Record
	for _, y := range s.years() {
		out = append(out, s.buckets[y]...)
	}
	return out
}

func (s *session) count() int {
	var n int
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}
