package handlers

import (
	"net/http"

	"hive/internal/domain"
	"hive/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

type roleRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	// Permissions replaces the role's permissions when present, even empty.
	Permissions *[]string `json:"permissions"`
}

func (r roleRequest) input() domain.RoleInput {
	in := domain.RoleInput{Name: r.Name}
	if r.Permissions != nil {
		in.Permissions = *r.Permissions
		in.SyncPermissions = true
	}
	return in
}

type permissionRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Group string `json:"group_name" binding:"omitempty,max=255"`
}

// RolePermissions serves GET /api/roles/permissions.
func (a *API) RolePermissions(c *gin.Context) {
	rc := middleware.RequestContext(c)
	perms, err := a.Roles.ListPermissions(c.Request.Context(), rc)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]map[string]any, len(perms))
	for i, p := range perms {
		out[i] = p.Fields()
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"context": rc.ContextLabel(), "guard": rc.GuardOrDefault()},
		"data": out,
	})
}

// CreateRole serves POST /api/roles.
func (a *API) CreateRole(c *gin.Context) {
	var req roleRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	rc := middleware.RequestContext(c)
	role, err := a.Roles.Create(c.Request.Context(), rc, req.input())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"meta": gin.H{"message": "role created for " + rc.GuardOrDefault() + " guard"},
		"role": role.Fields(),
	})
}

// UpdateRole serves PUT /api/roles/:id.
func (a *API) UpdateRole(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	role, err := a.Roles.Update(c.Request.Context(), middleware.RequestContext(c), id, req.input())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": gin.H{"message": "role updated"}, "role": role.Fields()})
}

// DeleteRole serves DELETE /api/roles/:id.
func (a *API) DeleteRole(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if err := a.Roles.Delete(c.Request.Context(), middleware.RequestContext(c), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
}

// CreatePermission serves POST /api/permissions.
func (a *API) CreatePermission(c *gin.Context) {
	var req permissionRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	p, err := a.Permissions.Create(c.Request.Context(), middleware.RequestContext(c),
		domain.PermissionInput{Name: req.Name, Group: req.Group})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"meta": gin.H{"message": "permission created"}, "permission": p.Fields()})
}

// UpdatePermission serves PUT /api/permissions/:id.
func (a *API) UpdatePermission(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req permissionRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	p, err := a.Permissions.Update(c.Request.Context(), middleware.RequestContext(c), id,
		domain.PermissionInput{Name: req.Name, Group: req.Group})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": gin.H{"message": "permission updated"}, "permission": p.Fields()})
}

// DeletePermission serves DELETE /api/permissions/:id.
func (a *API) DeletePermission(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if err := a.Permissions.Delete(c.Request.Context(), middleware.RequestContext(c), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "permission deleted"})
}
