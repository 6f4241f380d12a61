package crawler

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session tracks the mutable state of one crawl run: the run identity, the
// detail IDs already enqueued, and the counters progress reporting derives
// rate and ETA from. All crawl state lives here rather than in package or
// per-goroutine globals, so concurrent runs never share anything.
type Session struct {
	ID      uuid.UUID
	started time.Time

	mu        sync.Mutex
	seen      map[int64]struct{}
	processed int64
	skipped   int64
	total     int64
}

// NewSession allocates a Session with a fresh run ID.
func NewSession() *Session {
	return &Session{
		ID:      uuid.New(),
		started: time.Now(),
		seen:    make(map[int64]struct{}),
	}
}

// MarkSeen records a detail ID and reports whether it was new. A false return
// means the ID was already enqueued this run and must not be fetched again.
func (s *Session) MarkSeen(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// AddTotal accumulates the declared result count reported by a list page.
func (s *Session) AddTotal(n int64) {
	s.mu.Lock()
	s.total += n
	s.mu.Unlock()
}

// AddProcessed increments the processed counter and returns the new value.
func (s *Session) AddProcessed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return s.processed
}

// AddSkipped increments the skipped counter and returns the new value.
func (s *Session) AddSkipped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
	return s.skipped
}

// Stats is a consistent snapshot of the session counters plus derived
// throughput figures. Rate is cards per second since the session started;
// Percent and ETA are zero when no total is known.
type Stats struct {
	Processed int64
	Skipped   int64
	Total     int64
	Rate      float64
	Percent   float64
	ETA       time.Duration
	Elapsed   time.Duration
}

// Snapshot computes the current Stats.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	processed, skipped, total := s.processed, s.skipped, s.total
	s.mu.Unlock()

	st := Stats{
		Processed: processed,
		Skipped:   skipped,
		Total:     total,
		Elapsed:   time.Since(s.started),
	}
	if secs := st.Elapsed.Seconds(); secs > 0 {
		st.Rate = float64(processed) / secs
	}
	if total > 0 {
		st.Percent = float64(processed) / float64(total) * 100
		if st.Rate > 0 && processed < total {
			remaining := float64(total-processed) / st.Rate
			st.ETA = time.Duration(remaining * float64(time.Second))
		}
	}
	return st
}
