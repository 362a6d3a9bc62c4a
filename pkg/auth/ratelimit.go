package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter decides whether a caller may issue another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// RateLimitError rejects a request. It matches ErrTooManyRequests.
type RateLimitError struct {
	Tier       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tier %q, retry in %s", e.Tier, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrTooManyRequests }

// TierConfig is the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter counts requests per subject and tier in fixed
// one-minute windows.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu        sync.Mutex
	counters  map[string]*window
	lastPrune time.Time
}

type window struct {
	count int
	start time.Time
}

// NewInProcessLimiter creates a limiter. Tiers without an entry use
// defaultRPM; a limit of zero or less disables limiting for the tier.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*window),
	}
}

// Allow implements RateLimiter.
func (l *InProcessLimiter) Allow(_ context.Context, id *Identity) error {
	tier := id.Tier()
	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := id.Subject + "\x00" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	w, ok := l.counters[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.counters[key] = &window{count: 1, start: now}
		return nil
	}
	if w.count >= rpm {
		return &RateLimitError{Tier: tier, RetryAfter: w.start.Add(time.Minute).Sub(now)}
	}
	w.count++
	return nil
}

// prune drops expired windows at most once a minute. Caller holds l.mu.
func (l *InProcessLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now
	for k, w := range l.counters {
		if now.Sub(w.start) >= time.Minute {
			delete(l.counters, k)
		}
	}
}

// Len returns the number of tracked windows.
func (l *InProcessLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
