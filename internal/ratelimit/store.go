package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the windowed counter a Limiter runs on. Increment bumps the
// counter for key, starting a new window of the given length when the key is
// absent, and returns the post-increment count together with the time left in
// the current window. Decrement refunds one unit, used by skip-successful
// policies; it never drives a counter below zero.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
	Decrement(ctx context.Context, key string) error
}
