package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore(), cfg, zap.NewNop())
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestLimiter_EnforcementSequence(t *testing.T) {
	t.Parallel()

	// Capacity 70 (60 base + 10 burst), refill 1 token/s. 71 back-to-back
	// calls yield exactly one denial (the 71st); one second later the
	// refilled token lets the 72nd through.
	l, now := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	denials := 0
	for i := 0; i < 71; i++ {
		res := l.CheckAndConsume(ctx, "user-1")
		if !res.Allowed {
			denials++
			if i != 70 {
				t.Fatalf("unexpected denial at call %d", i+1)
			}
			if res.RetryAfter <= 0 {
				t.Errorf("expected positive retry_after on denial, got %v", res.RetryAfter)
			}
		}
	}
	if denials != 1 {
		t.Fatalf("expected exactly 1 denial, got %d", denials)
	}

	*now = now.Add(1 * time.Second)
	res := l.CheckAndConsume(ctx, "user-1")
	if !res.Allowed {
		t.Errorf("expected call after 1s refill to be allowed, remaining=%d retry=%v",
			res.RemainingMinute, res.RetryAfter)
	}
}

func TestLimiter_TokenInvariant(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(DefaultConfig())
	ctx := context.Background()
	cap := int(l.Config().MinuteCapacity())

	// Drain completely, then idle far longer than any refill horizon:
	// tokens must cap at capacity, never exceed it.
	for i := 0; i < cap+5; i++ {
		l.CheckAndConsume(ctx, "user-1")
	}
	*now = now.Add(48 * time.Hour)

	res := l.CheckAndConsume(ctx, "user-1")
	if !res.Allowed {
		t.Fatal("expected allowance after long idle")
	}
	if res.RemainingMinute != cap-1 {
		t.Errorf("remaining minute = %d, want %d (capacity minus the consumed token)",
			res.RemainingMinute, cap-1)
	}
	if res.RemainingHour != l.Config().HourCapacity-1 {
		t.Errorf("remaining hour = %d, want %d", res.RemainingHour, l.Config().HourCapacity-1)
	}

	// And denial never drives a bucket negative
	for i := 0; i < cap+10; i++ {
		r := l.CheckAndConsume(ctx, "user-1")
		if r.RemainingMinute < 0 || r.RemainingHour < 0 {
			t.Fatalf("token count went negative: %+v", r)
		}
	}
}

func TestLimiter_HourBucketBinds(t *testing.T) {
	t.Parallel()

	// A tiny hour bucket becomes the binding constraint while the minute
	// bucket still has tokens; retry_after must reflect the hour refill.
	cfg := Config{MinuteBase: 60, MinuteBurst: 10, HourCapacity: 2}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := l.CheckAndConsume(ctx, "user-1"); !res.Allowed {
			t.Fatalf("call %d unexpectedly denied", i+1)
		}
	}

	res := l.CheckAndConsume(ctx, "user-1")
	if res.Allowed {
		t.Fatal("expected denial once hour bucket is empty")
	}
	minHourWait := time.Duration(1 / cfg.HourRefillRate() * float64(time.Second))
	if res.RetryAfter < minHourWait/2 {
		t.Errorf("retry_after %v too small for hour-bucket constraint (rate %v/s)",
			res.RetryAfter, cfg.HourRefillRate())
	}
}

func TestLimiter_DenialDoesNotConsume(t *testing.T) {
	t.Parallel()

	cfg := Config{MinuteBase: 2, MinuteBurst: 0, HourCapacity: 1000}
	l, now := newTestLimiter(cfg)
	ctx := context.Background()

	l.CheckAndConsume(ctx, "user-1")
	l.CheckAndConsume(ctx, "user-1")

	// Repeated denials while empty must not push the refill time back
	for i := 0; i < 5; i++ {
		if res := l.CheckAndConsume(ctx, "user-1"); res.Allowed {
			t.Fatalf("denial expected on drained bucket, call %d", i+1)
		}
	}

	// One token refills in 30s at rate 2/60
	*now = now.Add(31 * time.Second)
	if res := l.CheckAndConsume(ctx, "user-1"); !res.Allowed {
		t.Errorf("expected allowance after refill, got remaining=%d", res.RemainingMinute)
	}
}

func TestLimiter_UsersIndependent(t *testing.T) {
	t.Parallel()

	cfg := Config{MinuteBase: 1, MinuteBurst: 0, HourCapacity: 1000}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	if res := l.CheckAndConsume(ctx, "user-a"); !res.Allowed {
		t.Fatal("first call for user-a denied")
	}
	if res := l.CheckAndConsume(ctx, "user-a"); res.Allowed {
		t.Fatal("second call for user-a should be denied")
	}
	if res := l.CheckAndConsume(ctx, "user-b"); !res.Allowed {
		t.Error("user-b must not be affected by user-a's bucket")
	}
}

type failingStore struct{}

func (failingStore) Consume(ctx context.Context, userID string, cfg Config, now time.Time) (State, error) {
	return State{}, errors.New("store unreachable")
}

func TestLimiter_FailsOpen(t *testing.T) {
	t.Parallel()

	l := New(failingStore{}, DefaultConfig(), zap.NewNop())
	res := l.CheckAndConsume(context.Background(), "user-1")
	if !res.Allowed {
		t.Error("expected fail-open allowance when the store is unreachable")
	}
	if !res.FailedOpen {
		t.Error("expected FailedOpen flag to be set")
	}
}
