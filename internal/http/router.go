package api

import (
	stdhttp "net/http"

	intconfig "hive/internal/config"
	"hive/internal/domain"
	h "hive/internal/http/handlers"
	"hive/internal/http/middleware"
	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminRoles may change other users.
var AdminRoles = []string{"Super Admin", "Admin"}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	API    *h.API
	Tokens middleware.TokenParser
}

func NewRouter(env intconfig.Env, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(),
		middleware.CORS(env.CORSAllowedOrigins), middleware.Tenant(env.TenantBaseDomain))

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.L().Warn("failed to set trusted proxies", zap.Error(err))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	a := deps.API
	limiter := middleware.NewRateLimiter(env.ExportRatePerMin)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/db-check", h.DBCheck)
		api.GET("/routes", h.Routes)
		api.GET("/check", h.Check)

		api.POST("/login", a.Login)

		authed := api.Group("", middleware.RequireAuth(deps.Tokens))
		authed.GET("/user", a.Me)
		authed.POST("/logout", a.Logout)

		for _, res := range []string{domain.ResourceUsers, domain.ResourceRoles, domain.ResourcePermissions} {
			authed.GET("/"+res, a.List(res))
			authed.GET("/"+res+"/export", limiter.Middleware(), a.Export(res))
		}
		authed.GET("/users/:id", a.ShowUser)
		authed.GET("/roles/permissions", a.RolePermissions)

		admin := authed.Group("", middleware.RequireRoles(AdminRoles...))
		admin.POST("/users", a.CreateUser)
		admin.PUT("/users/:id", a.UpdateUser)
		admin.DELETE("/users/:id", a.DeleteUser)
		admin.POST("/users/:id/toggle-status", a.ToggleUserStatus)

		admin.POST("/roles", a.CreateRole)
		admin.PUT("/roles/:id", a.UpdateRole)
		admin.DELETE("/roles/:id", a.DeleteRole)

		admin.POST("/permissions", a.CreatePermission)
		admin.PUT("/permissions/:id", a.UpdatePermission)
		admin.DELETE("/permissions/:id", a.DeletePermission)
	}

	h.SetRouter(r)
	return r
}
