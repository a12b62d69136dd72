package middleware

import (
	"net/http"
	"strings"

	"hive/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	requestContextKey = "request_context"
	userRoleKey       = "userRole"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (domain.RequestContext, error)
}

// RequireAuth rejects requests without a valid bearer token for the
// request's tenancy and stores the caller's RequestContext.
func RequireAuth(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		rc, err := p.Parse(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		if rc.Tenant != GetTenant(c) {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", "token was issued for another workspace")
			return
		}
		rc.RequestID = GetRequestID(c)
		c.Set(requestContextKey, rc)
		c.Set(userRoleKey, rc.Role)
		c.Next()
	}
}

// RequestContext returns the authenticated caller, or the anonymous
// context of the request when no auth ran.
func RequestContext(c *gin.Context) domain.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if rc, ok := v.(domain.RequestContext); ok {
			return rc
		}
	}
	return domain.RequestContext{
		Guard:     Guard(c),
		Tenant:    GetTenant(c),
		RequestID: GetRequestID(c),
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"code":       code,
		"message":    message,
		"request_id": GetRequestID(c),
	})
}
