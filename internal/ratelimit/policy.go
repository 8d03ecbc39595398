// Package ratelimit implements fixed-window request limiting backed by a
// shared counter store. Counters live in Redis when it is configured and in
// process memory otherwise; a Redis outage fails over to memory transparently
// and any store error fails open rather than blocking traffic.
package ratelimit

import "time"

// Policy describes one named rate-limit bucket: how many requests a client
// may make within the window. SkipSuccessful marks policies that only count
// failed attempts, such as login throttling.
type Policy struct {
	Name           string
	Window         time.Duration
	Max            int
	SkipSuccessful bool
}

// Named policies applied by the HTTP layer. Handlers pick a policy per route
// group; the client key is derived from the authenticated user when present
// and the remote IP otherwise.
var (
	// Strict guards expensive unauthenticated writes such as signup.
	Strict = Policy{Name: "strict", Window: 15 * time.Minute, Max: 10}

	// Moderate covers ordinary public reads.
	Moderate = Policy{Name: "moderate", Window: 15 * time.Minute, Max: 100}

	// Lenient covers cheap, cacheable lookups.
	Lenient = Policy{Name: "lenient", Window: time.Hour, Max: 1000}

	// Auth throttles credential checks. Only failures count against the
	// limit: successful attempts are refunded by the middleware.
	Auth = Policy{Name: "auth", Window: 15 * time.Minute, Max: 5, SkipSuccessful: true}

	// API is the general limit for authenticated admin endpoints.
	API = Policy{Name: "api", Window: 15 * time.Minute, Max: 100}

	// PerUser is the per-identity ceiling across all endpoints.
	PerUser = Policy{Name: "per_user", Window: time.Hour, Max: 1000}
)

// Key builds the counter key for a client under this policy.
func (p Policy) Key(client string) string {
	return "ratelimit:" + p.Name + ":" + client
}
