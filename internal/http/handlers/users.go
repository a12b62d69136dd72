package handlers

import (
	"net/http"

	"hive/internal/http/middleware"
	"hive/internal/services"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// updateUserRequest fields left empty are not changed.
type updateUserRequest struct {
	Name     string `json:"name" binding:"omitempty,max=255"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"omitempty,min=8"`
	Role     string `json:"role"`
}

// ShowUser serves GET /api/users/:id.
func (a *API) ShowUser(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	user, err := a.Users.Show(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": authUser(user)})
}

// CreateUser serves POST /api/users.
func (a *API) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	user, err := a.Users.Create(c.Request.Context(), middleware.RequestContext(c), services.UserInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created", "user": authUser(user)})
}

// UpdateUser serves PUT /api/users/:id.
func (a *API) UpdateUser(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	user, err := a.Users.Update(c.Request.Context(), middleware.RequestContext(c), id, services.UserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated", "user": authUser(user)})
}

// DeleteUser serves DELETE /api/users/:id.
func (a *API) DeleteUser(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if err := a.Users.Delete(c.Request.Context(), middleware.RequestContext(c), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// ToggleUserStatus serves POST /api/users/:id/toggle-status.
func (a *API) ToggleUserStatus(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	user, err := a.Users.ToggleStatus(c.Request.Context(), middleware.RequestContext(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	msg := "user deactivated"
	if user.IsActive {
		msg = "user activated"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "user": authUser(user)})
}
