package merge

import (
	"sync"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

// Source identifies which producer appended a batch.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceLive       Source = "live"
)

// Stats summarises the point set.
type Stats struct {
	Points            int
	HistoricalBatches int
	LiveBatches       int
	Duplicates        int
}

// Option configures a Store.
type Option func(*Store)

// WithDedupe skips records whose id is already present; the first occurrence wins.
func WithDedupe() Option {
	return func(s *Store) {
		s.seen = make(map[int64]struct{})
	}
}

// Store is the single owner of the merged point set. Appends from the
// history pager and the live feed are serialized; each call lands as a whole.
// Storage order is append order.
type Store struct {
	mu     sync.RWMutex
	points []model.Record
	seen   map[int64]struct{} // nil when dedupe is off
	closed bool
	stats  Stats
}

func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendHistorical appends one history page (or a whole backfill).
// It reports false when the store has been closed and the batch was discarded.
func (s *Store) AppendHistorical(records []model.Record) bool {
	return s.append(SourceHistorical, records)
}

// AppendLive appends one live batch in arrival order.
func (s *Store) AppendLive(batch []model.Record) bool {
	return s.append(SourceLive, batch)
}

func (s *Store) append(src Source, records []model.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	switch src {
	case SourceHistorical:
		s.stats.HistoricalBatches++
	case SourceLive:
		s.stats.LiveBatches++
	}

	if s.seen == nil {
		s.points = append(s.points, records...)
		return true
	}

	for _, rec := range records {
		if _, dup := s.seen[rec.ID]; dup {
			s.stats.Duplicates++
			continue
		}
		s.seen[rec.ID] = struct{}{}
		s.points = append(s.points, rec)
	}
	return true
}

// Snapshot returns a copy of the point set in storage order.
func (s *Store) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Stats returns counters for the current set.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Points = len(s.points)
	return st
}

// LatestTime returns the greatest timestamp in the set, regardless of
// storage order, and false when no record has one.
func (s *Store) LatestTime() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest string
	found := false
	for _, rec := range s.points {
		if rec.Time == nil {
			continue
		}
		if !found || *rec.Time > latest {
			latest = *rec.Time
			found = true
		}
	}
	return latest, found
}

// Reset drops every point and counter but keeps the store open.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = nil
	s.stats = Stats{}
	if s.seen != nil {
		s.seen = make(map[int64]struct{})
	}
}

// Close tears the store down; later appends are discarded.
// The points already stored remain readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
