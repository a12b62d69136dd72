package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireRoles only lets through callers whose role is in allowedRoles.
// It expects RequireAuth to have run:
//
//	r.GET("/admin", RequireAuth(p), RequireRoles("Super Admin", "Admin"), handler)
func RequireRoles(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(userRoleKey)
		if role == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", "no role on request")
			return
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
			abortJSON(c, http.StatusForbidden, "forbidden", "role not allowed")
			return
		}
		c.Next()
	}
}
