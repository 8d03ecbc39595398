// rbac.go implements permission-based authorization middleware.
//
// Permissions are carried inside the access token, so a role change only
// takes effect when the token is refreshed. Access tokens are short-lived
// (one hour by default), which bounds the staleness window.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/auth"
)

// RequirePermission checks that the authenticated identity holds the given
// permission. Must run after AuthMiddleware.
func RequirePermission(required auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		permsVal, exists := c.Get(PermissionsKey)
		if !exists {
			forbidden(c)
			return
		}

		perms, ok := permsVal.([]string)
		if !ok || !auth.HasPermission(perms, required) {
			forbidden(c)
			return
		}

		c.Next()
	}
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error": "Insufficient permissions",
	})
}
