package handlers

import (
	"context"

	"hive/internal/domain"
	"hive/internal/services"
)

// Lister resolves one page of a resource.
type Lister interface {
	Resolve(ctx context.Context, rc domain.RequestContext, resource string, q domain.Query) (domain.Page, error)
}

// Exporter produces an export artifact.
type Exporter interface {
	Export(ctx context.Context, rc domain.RequestContext, job domain.ExportJob) (services.Artifact, error)
}

// Authenticator logs users in and out.
type Authenticator interface {
	Login(ctx context.Context, rc domain.RequestContext, email, password string) (string, domain.User, error)
	Logout(ctx context.Context, rc domain.RequestContext) error
}

// UserAdmin covers user profile, stats and the user write operations.
type UserAdmin interface {
	Stats(ctx context.Context) (domain.UserStats, error)
	Profile(ctx context.Context, rc domain.RequestContext) (domain.User, error)
	ToggleStatus(ctx context.Context, rc domain.RequestContext, id int64) (domain.User, error)
	Show(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, rc domain.RequestContext, in services.UserInput) (domain.User, error)
	Update(ctx context.Context, rc domain.RequestContext, id int64, in services.UserInput) (domain.User, error)
	Delete(ctx context.Context, rc domain.RequestContext, id int64) error
}

// RoleAdmin manages roles of the caller's guard.
type RoleAdmin interface {
	ListPermissions(ctx context.Context, rc domain.RequestContext) ([]domain.Permission, error)
	Create(ctx context.Context, rc domain.RequestContext, in domain.RoleInput) (domain.Role, error)
	Update(ctx context.Context, rc domain.RequestContext, id int64, in domain.RoleInput) (domain.Role, error)
	Delete(ctx context.Context, rc domain.RequestContext, id int64) error
}

// PermissionAdmin manages permissions of the caller's guard.
type PermissionAdmin interface {
	Create(ctx context.Context, rc domain.RequestContext, in domain.PermissionInput) (domain.Permission, error)
	Update(ctx context.Context, rc domain.RequestContext, id int64, in domain.PermissionInput) (domain.Permission, error)
	Delete(ctx context.Context, rc domain.RequestContext, id int64) error
}

// API holds the services the HTTP handlers call.
type API struct {
	Lister      Lister
	Exporter    Exporter
	Auth        Authenticator
	Users       UserAdmin
	Roles       RoleAdmin
	Permissions PermissionAdmin
	MaxPageSize int
}
