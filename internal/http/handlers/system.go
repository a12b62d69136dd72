package handlers

import (
	"net/http"
	"sync"

	intconfig "hive/internal/config"
	intdb "hive/internal/db"
	"hive/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

var (
	routerMu sync.RWMutex
	router   *gin.Engine
)

// SetRouter stores the active gin engine for later inspection (e.g., /api/routes).
func SetRouter(r *gin.Engine) {
	routerMu.Lock()
	defer routerMu.Unlock()
	router = r
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "hive backend running"})
}

// Check reports the workspace the request resolved to.
func Check(c *gin.Context) {
	rc := middleware.RequestContext(c)
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"context": rc.ContextLabel(),
		"guard":   rc.GuardOrDefault(),
		"tenant":  rc.Tenant,
	})
}

// DBCheck pings the database and lists missing tables.
func DBCheck(c *gin.Context) {
	db := intconfig.DB
	if db == nil {
		RespondError(c, http.StatusServiceUnavailable, "database not connected", nil)
		return
	}
	if err := intconfig.PingDB(c.Request.Context()); err != nil {
		RespondError(c, http.StatusServiceUnavailable, "database ping failed", err)
		return
	}
	missing := intdb.MissingTables(c.Request.Context(), db, intdb.RequiredTables)
	if len(missing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "schema incomplete", "missing_tables": missing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "database OK"})
}

func Routes(c *gin.Context) {
	routerMu.RLock()
	r := router
	routerMu.RUnlock()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "router not ready"})
		return
	}

	routes := r.Routes()
	out := make([]gin.H, 0, len(routes))
	for _, rt := range routes {
		out = append(out, gin.H{
			"method":  rt.Method,
			"path":    rt.Path,
			"handler": rt.Handler,
		})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}
