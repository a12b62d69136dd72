package handlers

import (
	"net/http"

	"hive/internal/domain"
	"hive/internal/http/middleware"
	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthUser is the user payload returned by login and /user.
type AuthUser struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Roles    []string `json:"roles"`
	Status   string   `json:"status"`
	IsActive bool     `json:"is_active"`
}

func authUser(u domain.User) AuthUser {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return AuthUser{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.PrimaryRole(),
		Roles:    roles,
		Status:   u.StatusLabel(),
		IsActive: u.IsActive,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login serves POST /api/login.
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !BindJSONOrError(c, &req) {
		return
	}

	rc := middleware.RequestContext(c)
	token, user, err := a.Auth.Login(c.Request.Context(), rc, req.Email, req.Password)
	if err != nil {
		if domain.IsUnauthorized(err) {
			utils.LogEvent(rc.RequestID, "auth", "login_failed", zap.String("tenant", rc.Tenant))
		}
		RespondDomainError(c, err)
		return
	}
	utils.LogEvent(rc.RequestID, "auth", "login", zap.Int64("user_id", user.ID), zap.String("tenant", rc.Tenant))

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"user":       authUser(user),
	})
}

// Me serves GET /api/user.
func (a *API) Me(c *gin.Context) {
	rc := middleware.RequestContext(c)
	user, err := a.Users.Profile(c.Request.Context(), rc)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": authUser(user), "context": rc.ContextLabel(), "guard": rc.GuardOrDefault()})
}

// Logout serves POST /api/logout.
func (a *API) Logout(c *gin.Context) {
	if err := a.Auth.Logout(c.Request.Context(), middleware.RequestContext(c)); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
