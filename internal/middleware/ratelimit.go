// ratelimit.go provides Gin middleware that enforces fixed-window per-client
// rate limits, returning 429 responses when a policy's budget is exhausted.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/ratelimit"
)

// RateLimitMiddleware applies one named policy to every request through it.
// The client key is the authenticated user when AuthMiddleware has already
// run, and the remote IP otherwise.
//
// Policies with SkipSuccessful refund the slot after the handler completes
// without an error status, so only failed attempts count against the budget.
func RateLimitMiddleware(limiter *ratelimit.Limiter, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := clientKey(c)

		res := limiter.Check(c.Request.Context(), policy, client)

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		}

		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()

		if policy.SkipSuccessful && c.Writer.Status() < http.StatusBadRequest {
			limiter.Refund(c.Request.Context(), policy, client)
		}
	}
}

// clientKey prefers the authenticated identity so limits follow the account
// across addresses; anonymous traffic is keyed by IP.
func clientKey(c *gin.Context) string {
	if userID, exists := c.Get(UserIDKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
