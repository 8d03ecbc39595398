// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers and request logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → RBAC → Handler
//
// Security headers run early so they appear on all responses including errors.
// Rate limiting runs before auth to stop brute-force attempts before any
// crypto or DB work. Auth populates the identity and permissions; RBAC reads
// them from the context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/auth"
)

// Context keys populated by AuthMiddleware.
const (
	UserIDKey      = "user_id"
	UsernameKey    = "username"
	EmailKey       = "email"
	RoleKey        = "role"
	PermissionsKey = "permissions"
)

// AuthMiddleware validates the bearer access token and loads the identity
// into the request context. Every rejection is the same 401: clients learn
// that a token did not work, never why.
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(c)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			unauthorized(c)
			return
		}

		claims := tokens.VerifyAccessToken(token)
		if claims == nil {
			unauthorized(c)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(EmailKey, claims.Email)
		c.Set(RoleKey, claims.Role)
		c.Set(PermissionsKey, claims.Permissions)

		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "Invalid or expired token",
	})
}
