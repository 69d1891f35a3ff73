// Package cache holds recently generated report bundles so repeated
// dashboard hits inside the TTL window reuse one pipeline run.
package cache

import (
	"sync"
	"time"

	"github.com/dwg-inc/cncreport/internal/report"
)

// DefaultTTL is how long a generated bundle stays fresh.
const DefaultTTL = time.Hour

// entry is one build, possibly still in flight. done closes when the
// build finishes; bundle, err and created may only be read after done.
type entry struct {
	done    chan struct{}
	bundle  *report.Bundle
	err     error
	created time.Time
}

// Store is a TTL-bounded bundle registry keyed by period ID. Safe for
// concurrent use. Builds run outside the store lock, so distinct periods
// never wait on each other; concurrent callers for the same key share a
// single build. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*entry
}

// New returns a store with the given TTL. ttl <= 0 means DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Store {
	s := New(ttl)
	s.now = now
	return s
}

// GetOrCreate returns the cached bundle for key if it is still fresh,
// otherwise calls build and caches the result. Build errors are not
// cached, though callers waiting on a failing build share its error.
func (s *Store) GetOrCreate(key string, build func() (*report.Bundle, error)) (*report.Bundle, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry{done: make(chan struct{})}
			s.entries[key] = e
			s.mu.Unlock()

			e.bundle, e.err = build()
			e.created = s.now()
			close(e.done)

			if e.err != nil {
				s.drop(key, e)
				return nil, e.err
			}
			return e.bundle, nil
		}
		s.mu.Unlock()

		<-e.done
		if e.err != nil {
			s.drop(key, e)
			return nil, e.err
		}
		if s.now().Sub(e.created) < s.ttl {
			return e.bundle, nil
		}
		s.drop(key, e)
	}
}

// Get returns the cached bundle for key if fresh, without building or
// waiting on an in-flight build.
func (s *Store) Get(key string) (*report.Bundle, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	select {
	case <-e.done:
	default:
		return nil, false
	}
	if e.err != nil || s.now().Sub(e.created) >= s.ttl {
		return nil, false
	}
	return e.bundle, true
}

// Invalidate drops the entry for key, forcing the next GetOrCreate to
// rebuild. Used by the dashboard refresh action.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports how many entries are held, fresh, stale or in flight.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// drop removes the entry for key unless it was already replaced.
func (s *Store) drop(key string, e *entry) {
	s.mu.Lock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}
