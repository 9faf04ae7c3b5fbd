package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneInterval bounds how often idle principals are swept from the
// bucket map.
const pruneInterval = 10 * time.Minute

// MemoryStore keeps one token bucket per principal. Suitable for a
// single gateway instance; counts are lost on restart.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time

	// now is swappable in tests.
	now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:   make(map[string]*bucket),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// Allow implements Store with a token bucket refilled at limit/window,
// burst capacity equal to the full limit.
func (s *MemoryStore) Allow(_ context.Context, principal string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: false, RetryAfter: window}, nil
	}

	s.mu.Lock()
	now := s.now()
	b, ok := s.buckets[principal]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)}
		s.buckets[principal] = b
	}
	b.lastSeen = now
	if now.Sub(s.lastPrune) > pruneInterval {
		s.pruneLocked(now, window)
	}
	s.mu.Unlock()

	if !b.limiter.Allow() {
		// How long until one token refills.
		perToken := window / time.Duration(limit)
		return Result{Allowed: false, Limit: limit, RetryAfter: perToken}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: int(b.limiter.Tokens()),
	}, nil
}

// pruneLocked drops principals idle long enough for their buckets to
// have fully refilled; recreating the bucket later is equivalent.
func (s *MemoryStore) pruneLocked(now time.Time, window time.Duration) {
	for principal, b := range s.buckets {
		if now.Sub(b.lastSeen) > window {
			delete(s.buckets, principal)
		}
	}
	s.lastPrune = now
}

// Len reports the tracked principal count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
