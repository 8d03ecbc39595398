package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier between the portal,
	// its reverse proxy, and the client.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key the identifier is stored under,
	// so the request logger and handlers can read it without touching
	// response headers.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with an identifier: an inbound
// X-Request-ID (set by the ingress in front of the portal) is reused, and a
// fresh UUID v4 is minted otherwise. The value lands in the gin context under
// RequestIDKey and is echoed in the response header so a signup or linking
// failure reported by a user can be matched to its log lines.
//
// Must run before the request logger so every access log line carries the id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
