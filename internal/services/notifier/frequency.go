package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/preference"
	"golang.org/x/time/rate"
)

const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
	StrategyNone          = "none"
)

// FrequencyGate decides whether a user has used up their notification allowance.
type FrequencyGate interface {
	Exceeded(ctx context.Context, userID string, limit preference.FrequencyLimit) (bool, error)
}

// SentCounter counts a user's successful deliveries since a point in time.
type SentCounter interface {
	CountSent(ctx context.Context, userID string, since time.Time) (int, error)
}

func NewFrequencyGate(strategy string, counter SentCounter, clock notification.Clock) (FrequencyGate, error) {
	switch strategy {
	case "", StrategySlidingWindow:
		return NewSlidingWindowGate(counter, clock), nil
	case StrategyTokenBucket:
		return NewTokenBucketGate(clock), nil
	case StrategyNone:
		return NoLimit{}, nil
	default:
		return nil, fmt.Errorf("unknown frequency strategy %q", strategy)
	}
}

// SlidingWindowGate counts sent ledger records within [now-window, now].
type SlidingWindowGate struct {
	counter SentCounter
	clock   notification.Clock
}

func NewSlidingWindowGate(counter SentCounter, clock notification.Clock) *SlidingWindowGate {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &SlidingWindowGate{counter: counter, clock: clock}
}

func (g *SlidingWindowGate) Exceeded(ctx context.Context, userID string, limit preference.FrequencyLimit) (bool, error) {
	since := g.clock.Now().Add(-limit.Window)
	n, err := g.counter.CountSent(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return n >= limit.MaxNotifications, nil
}

// TokenBucketGate keeps one in-process limiter per user. A check that passes takes a token.
type TokenBucketGate struct {
	clock notification.Clock

	mu       sync.Mutex
	limiters map[string]*bucket
}

type bucket struct {
	lim   *rate.Limiter
	limit preference.FrequencyLimit
}

func NewTokenBucketGate(clock notification.Clock) *TokenBucketGate {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &TokenBucketGate{clock: clock, limiters: map[string]*bucket{}}
}

func (g *TokenBucketGate) Exceeded(_ context.Context, userID string, limit preference.FrequencyLimit) (bool, error) {
	g.mu.Lock()
	b, ok := g.limiters[userID]
	if !ok || b.limit != limit {
		every := limit.Window / time.Duration(limit.MaxNotifications)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), limit.MaxNotifications), limit: limit}
		g.limiters[userID] = b
	}
	g.mu.Unlock()

	return !b.lim.AllowN(g.clock.Now(), 1), nil
}

// NoLimit never throttles.
type NoLimit struct{}

func (NoLimit) Exceeded(context.Context, string, preference.FrequencyLimit) (bool, error) {
	return false, nil
}
