package middleware

import (
	"net"
	"strings"

	"hive/internal/domain"

	"github.com/gin-gonic/gin"
)

const tenantKey = "tenant"

// Tenant resolves the tenant from the X-Tenant header or, failing that,
// from a subdomain of baseDomain. Requests without one run centrally.
func Tenant(baseDomain string) gin.HandlerFunc {
	baseDomain = strings.ToLower(strings.Trim(baseDomain, "."))
	return func(c *gin.Context) {
		tenant := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Tenant")))
		if tenant == "" {
			tenant = subdomain(c.Request.Host, baseDomain)
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

// GetTenant returns the tenant resolved for this request, "" when central.
func GetTenant(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// Guard is the auth guard matching the request's tenancy.
func Guard(c *gin.Context) string {
	if GetTenant(c) != "" {
		return domain.GuardTenant
	}
	return domain.GuardCentral
}

func subdomain(host, base string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if base == "" || !strings.HasSuffix(host, "."+base) {
		return ""
	}
	sub := strings.TrimSuffix(host, "."+base)
	if sub == "" || sub == "www" || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}
