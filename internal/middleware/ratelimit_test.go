package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/ratelimit"
)

func newRateLimitRouter(t *testing.T, policy ratelimit.Policy, status int) *gin.Engine {
	t.Helper()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Stop)
	limiter := ratelimit.NewLimiter(nil, store, nil)

	r := gin.New()
	r.Use(RateLimitMiddleware(limiter, policy))
	r.POST("/", func(c *gin.Context) { c.Status(status) })
	return r
}

func doRequest(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	policy := ratelimit.Policy{Name: "test", Window: time.Minute, Max: 2}
	r := newRateLimitRouter(t, policy, http.StatusOK)

	w := doRequest(r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", w.Header().Get("X-RateLimit-Remaining"))
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset to be set")
	}
}

func TestRateLimitMiddleware_BlocksOverLimit(t *testing.T) {
	policy := ratelimit.Policy{Name: "test", Window: time.Minute, Max: 2}
	r := newRateLimitRouter(t, policy, http.StatusOK)

	doRequest(r)
	doRequest(r)
	w := doRequest(r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimitMiddleware_SkipSuccessfulRefunds(t *testing.T) {
	policy := ratelimit.Policy{Name: "auth", Window: time.Minute, Max: 1, SkipSuccessful: true}
	r := newRateLimitRouter(t, policy, http.StatusOK)

	// Every attempt succeeds, so the budget of 1 never depletes.
	for i := 0; i < 3; i++ {
		if w := doRequest(r); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestRateLimitMiddleware_SkipSuccessfulCountsFailures(t *testing.T) {
	policy := ratelimit.Policy{Name: "auth", Window: time.Minute, Max: 1, SkipSuccessful: true}
	r := newRateLimitRouter(t, policy, http.StatusUnauthorized)

	if w := doRequest(r); w.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt: status = %d, want 401", w.Code)
	}
	if w := doRequest(r); w.Code != http.StatusTooManyRequests {
		t.Errorf("second attempt: status = %d, want 429", w.Code)
	}
}

func TestRateLimitMiddleware_KeysByUserWhenAuthenticated(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Stop)
	limiter := ratelimit.NewLimiter(nil, store, nil)
	policy := ratelimit.Policy{Name: "test", Window: time.Minute, Max: 1}

	r := gin.New()
	user := "user-a"
	r.Use(func(c *gin.Context) { c.Set(UserIDKey, user) })
	r.Use(RateLimitMiddleware(limiter, policy))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doRequest(r); w.Code != http.StatusOK {
		t.Fatalf("user-a first request: status = %d", w.Code)
	}
	if w := doRequest(r); w.Code != http.StatusTooManyRequests {
		t.Fatalf("user-a second request: status = %d, want 429", w.Code)
	}

	// A different user from the same address has their own budget.
	user = "user-b"
	if w := doRequest(r); w.Code != http.StatusOK {
		t.Errorf("user-b first request: status = %d, want 200", w.Code)
	}
}
