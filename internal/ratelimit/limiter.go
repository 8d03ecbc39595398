package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dotctl/beta-portal/internal/telemetry"
)

// Result is the outcome of one limit check, carrying everything the HTTP
// layer needs to populate X-RateLimit-* and Retry-After headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter evaluates policies against a primary counter store with an
// in-memory fallback. When the primary errors the limiter switches to the
// fallback for that check and keeps probing the primary on subsequent checks;
// if both stores fail, the request is allowed. Limiting protects capacity,
// it must never become the outage.
type Limiter struct {
	primary  CounterStore
	fallback CounterStore
	logger   *slog.Logger

	// onFallback flags that the previous check used the fallback, so the
	// transition in each direction is logged once instead of per request.
	onFallback atomic.Bool
}

// NewLimiter builds a limiter. primary may be nil, in which case the fallback
// store serves all traffic.
func NewLimiter(primary CounterStore, fallback CounterStore, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Check records one request for client under the policy and reports whether
// it is within the limit.
func (l *Limiter) Check(ctx context.Context, policy Policy, client string) Result {
	key := policy.Key(client)

	count, remaining, err := l.increment(ctx, key, policy.Window)
	if err != nil {
		// Both stores failed; fail open.
		l.logger.Error("rate limit stores unavailable, allowing request",
			"policy", policy.Name, "error", err)
		return Result{Allowed: true, Limit: policy.Max, Remaining: policy.Max}
	}

	res := Result{
		Limit:      policy.Max,
		Allowed:    count <= int64(policy.Max),
		RetryAfter: remaining,
		ResetAt:    time.Now().Add(remaining),
	}
	if left := int64(policy.Max) - count; left > 0 {
		res.Remaining = int(left)
	}
	if !res.Allowed {
		telemetry.RateLimitExceededTotal.WithLabelValues(policy.Name).Inc()
	}
	return res
}

// Refund returns one unit to the client's counter, used by skip-successful
// policies after a request succeeds. Best effort: a failed refund only costs
// the client one slot in the current window.
func (l *Limiter) Refund(ctx context.Context, policy Policy, client string) {
	key := policy.Key(client)

	store := l.fallback
	if l.primary != nil && !l.onFallback.Load() {
		store = l.primary
	}
	if store == nil {
		return
	}
	if err := store.Decrement(ctx, key); err != nil {
		l.logger.Warn("rate limit refund failed", "policy", policy.Name, "error", err)
	}
}

func (l *Limiter) increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if l.primary != nil {
		count, remaining, err := l.primary.Increment(ctx, key, window)
		if err == nil {
			if l.onFallback.CompareAndSwap(true, false) {
				l.logger.Info("rate limit primary store recovered")
			}
			return count, remaining, nil
		}

		if l.onFallback.CompareAndSwap(false, true) {
			l.logger.Warn("rate limit primary store unavailable, failing over to memory", "error", err)
			telemetry.RateLimitStoreFailoversTotal.Inc()
		}
	}

	if l.fallback == nil {
		return 0, 0, errNoStore
	}
	return l.fallback.Increment(ctx, key, window)
}

var errNoStore = errors.New("no counter store configured")
