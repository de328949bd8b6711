package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-instance runs
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketPair
}

type bucketPair struct {
	minuteTokens float64
	hourTokens   float64
	last         time.Time
	initialized  bool
}

// NewMemoryStore creates an in-memory bucket store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucketPair)}
}

// Consume refills both buckets and consumes one token from each when both
// have at least one available. The mutex gives the same atomicity the Lua
// script provides on Redis.
func (s *MemoryStore) Consume(ctx context.Context, userID string, cfg Config, now time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.buckets[userID]
	if !ok || !pair.initialized {
		pair = &bucketPair{
			minuteTokens: cfg.MinuteCapacity(),
			hourTokens:   float64(cfg.HourCapacity),
			last:         now,
			initialized:  true,
		}
		s.buckets[userID] = pair
	}

	minute := refill(pair.minuteTokens, pair.last, cfg.MinuteCapacity(), cfg.MinuteRefillRate(), now)
	hour := refill(pair.hourTokens, pair.last, float64(cfg.HourCapacity), cfg.HourRefillRate(), now)

	state := State{MinuteTokens: minute, HourTokens: hour}
	if minute >= 1 && hour >= 1 {
		state.Allowed = true
		state.MinuteTokens--
		state.HourTokens--
	}

	pair.minuteTokens = state.MinuteTokens
	pair.hourTokens = state.HourTokens
	pair.last = now

	return state, nil
}

var _ Store = (*MemoryStore)(nil)
