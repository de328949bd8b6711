// Package ratelimit implements a per-user dual-window token bucket over a
// shared store. Refill is lazy: tokens accrue on read from the elapsed
// time since the last update, capped at capacity.
package ratelimit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config holds bucket parameters. The minute capacity is base plus burst.
type Config struct {
	MinuteBase   int
	MinuteBurst  int
	HourCapacity int
}

// DefaultConfig returns the standard 60+10 per minute, 1000 per hour setup
func DefaultConfig() Config {
	return Config{MinuteBase: 60, MinuteBurst: 10, HourCapacity: 1000}
}

// MinuteCapacity is base + burst
func (c Config) MinuteCapacity() float64 {
	return float64(c.MinuteBase + c.MinuteBurst)
}

// MinuteRefillRate is tokens per second for the minute window (base/60)
func (c Config) MinuteRefillRate() float64 {
	return float64(c.MinuteBase) / 60.0
}

// HourRefillRate is tokens per second for the hour window
func (c Config) HourRefillRate() float64 {
	return float64(c.HourCapacity) / 3600.0
}

// Result reports the outcome of one check-and-consume call
type Result struct {
	Allowed         bool
	RemainingMinute int
	RemainingHour   int
	// RetryAfter is how long until the binding bucket refills one token;
	// zero when allowed
	RetryAfter time.Duration
	// FailedOpen is true when the store was unreachable and the request
	// was allowed anyway
	FailedOpen bool
}

// State is the post-refill token state returned by a Store
type State struct {
	Allowed      bool
	MinuteTokens float64
	HourTokens   float64
}

// Store atomically refills both of a user's buckets and, when both hold at
// least one token, consumes one from each. A denied call must not consume.
type Store interface {
	Consume(ctx context.Context, userID string, cfg Config, now time.Time) (State, error)
}

// Limiter gates requests per user across both windows
type Limiter struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a limiter over the given store
func New(store Store, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.MinuteBase <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock overrides the time source for tests
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Config returns the active bucket parameters
func (l *Limiter) Config() Config { return l.cfg }

// CheckAndConsume takes one token from each window, or denies without
// consuming when either window is empty. Store failures fail open: limiting
// is best-effort and availability of the surrounding system wins.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID string) Result {
	state, err := l.store.Consume(ctx, userID, l.cfg, l.now())
	if err != nil {
		l.logger.Warn("rate_limit_store_unreachable_failing_open",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Result{
			Allowed:         true,
			RemainingMinute: int(l.cfg.MinuteCapacity()),
			RemainingHour:   l.cfg.HourCapacity,
			FailedOpen:      true,
		}
	}

	res := Result{
		Allowed:         state.Allowed,
		RemainingMinute: int(math.Floor(state.MinuteTokens)),
		RemainingHour:   int(math.Floor(state.HourTokens)),
	}
	if !state.Allowed {
		res.RetryAfter = retryAfter(state, l.cfg)
	}
	return res
}

// retryAfter computes how long until the binding bucket holds one token
func retryAfter(state State, cfg Config) time.Duration {
	var wait float64
	if state.MinuteTokens < 1 {
		wait = (1 - state.MinuteTokens) / cfg.MinuteRefillRate()
	}
	if state.HourTokens < 1 {
		if w := (1 - state.HourTokens) / cfg.HourRefillRate(); w > wait {
			wait = w
		}
	}
	if wait <= 0 {
		return 0
	}
	return time.Duration(wait * float64(time.Second))
}

// refill applies lazy refill to one bucket: elapsed * rate added, capped at
// capacity, never negative. Shared by the memory store and mirrored by the
// Redis script.
func refill(tokens float64, last time.Time, capacity, rate float64, now time.Time) float64 {
	elapsed := now.Sub(last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens += elapsed * rate
	if tokens > capacity {
		tokens = capacity
	}
	if tokens < 0 {
		tokens = 0
	}
	return tokens
}
