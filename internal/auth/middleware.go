package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const BearerPrefix = "Bearer "

// Context keys set by RequireAuth.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
)

// RequireAuth checks the bearer token and sets user_id and role in context.
// With a nil verifier it lets every request through unauthenticated.
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing or invalid authorization"})
			return
		}
		claims, err := v.ParseToken(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}
		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyRole, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the role set by RequireAuth is one of
// roles. With a nil verifier it is a no-op.
func RequireRole(v *Verifier, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		if !slices.Contains(roles, c.GetString(KeyRole)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "role not allowed"})
			return
		}
		c.Next()
	}
}
