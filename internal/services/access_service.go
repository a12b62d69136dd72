package services

import (
	"context"
	"strings"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

// ProtectedRoles cannot be renamed or deleted.
var ProtectedRoles = []string{"Admin", SuperAdminRole}

// RoleStore is the roles table as seen by role administration. Every
// write is scoped to one guard.
type RoleStore interface {
	GetByID(ctx context.Context, rc domain.RequestContext, id int64) (domain.Role, error)
	Create(ctx context.Context, guard string, in domain.RoleInput) (int64, error)
	Update(ctx context.Context, guard string, id int64, in domain.RoleInput) error
	Delete(ctx context.Context, guard string, id int64) error
}

// PermissionStore is the permissions table as seen by administration.
type PermissionStore interface {
	ListByGuard(ctx context.Context, guard string) ([]domain.Permission, error)
	GetByID(ctx context.Context, rc domain.RequestContext, id int64) (domain.Permission, error)
	Create(ctx context.Context, guard string, in domain.PermissionInput) (int64, error)
	Update(ctx context.Context, guard string, id int64, in domain.PermissionInput) error
	Delete(ctx context.Context, guard string, id int64) error
}

// RolesService manages roles of the caller's guard.
type RolesService struct {
	Roles       RoleStore
	Permissions PermissionStore
}

// ListPermissions lists what can be granted to roles in the caller's guard.
func (s RolesService) ListPermissions(ctx context.Context, rc domain.RequestContext) ([]domain.Permission, error) {
	perms, err := s.Permissions.ListByGuard(ctx, rc.GuardOrDefault())
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []domain.Permission{}
	}
	return perms, nil
}

func (s RolesService) Create(ctx context.Context, rc domain.RequestContext, in domain.RoleInput) (domain.Role, error) {
	in = cleanRoleInput(in)
	if err := validateName("name", in.Name); err != nil {
		return domain.Role{}, err
	}
	id, err := s.Roles.Create(ctx, rc.GuardOrDefault(), in)
	if err != nil {
		return domain.Role{}, err
	}
	utils.LogEvent(rc.RequestID, "roles", "create", zap.Int64("role_id", id), zap.String("guard", rc.GuardOrDefault()))
	return s.Roles.GetByID(ctx, rc, id)
}

// Update renames a role and optionally replaces its permissions. Protected
// roles keep their name.
func (s RolesService) Update(ctx context.Context, rc domain.RequestContext, id int64, in domain.RoleInput) (domain.Role, error) {
	in = cleanRoleInput(in)
	if err := validateName("name", in.Name); err != nil {
		return domain.Role{}, err
	}
	role, err := s.role(ctx, rc, id)
	if err != nil {
		return domain.Role{}, err
	}
	if isProtectedRole(role.Name) && in.Name != role.Name {
		return domain.Role{}, domain.ForbiddenError{Msg: "this role cannot be renamed"}
	}
	if err := s.Roles.Update(ctx, rc.GuardOrDefault(), id, in); err != nil {
		return domain.Role{}, err
	}
	utils.LogEvent(rc.RequestID, "roles", "update", zap.Int64("role_id", id))
	return s.Roles.GetByID(ctx, rc, id)
}

func (s RolesService) Delete(ctx context.Context, rc domain.RequestContext, id int64) error {
	role, err := s.role(ctx, rc, id)
	if err != nil {
		return err
	}
	if isProtectedRole(role.Name) {
		return domain.ForbiddenError{Msg: "this role cannot be deleted"}
	}
	if err := s.Roles.Delete(ctx, rc.GuardOrDefault(), id); err != nil {
		return err
	}
	utils.LogEvent(rc.RequestID, "roles", "delete", zap.Int64("role_id", id))
	return nil
}

// role loads a role of the caller's own guard. The central context can
// list tenant roles but not change them.
func (s RolesService) role(ctx context.Context, rc domain.RequestContext, id int64) (domain.Role, error) {
	role, err := s.Roles.GetByID(ctx, rc, id)
	if err != nil {
		return domain.Role{}, err
	}
	if role.GuardName != rc.GuardOrDefault() {
		return domain.Role{}, domain.NotFoundError{Resource: "role"}
	}
	return role, nil
}

// PermissionsService manages permissions of the caller's guard.
type PermissionsService struct {
	Permissions PermissionStore
}

func (s PermissionsService) Create(ctx context.Context, rc domain.RequestContext, in domain.PermissionInput) (domain.Permission, error) {
	in.Name, in.Group = strings.TrimSpace(in.Name), strings.TrimSpace(in.Group)
	if err := validateName("name", in.Name); err != nil {
		return domain.Permission{}, err
	}
	id, err := s.Permissions.Create(ctx, rc.GuardOrDefault(), in)
	if err != nil {
		return domain.Permission{}, err
	}
	utils.LogEvent(rc.RequestID, "permissions", "create", zap.Int64("permission_id", id))
	return s.Permissions.GetByID(ctx, rc, id)
}

func (s PermissionsService) Update(ctx context.Context, rc domain.RequestContext, id int64, in domain.PermissionInput) (domain.Permission, error) {
	in.Name, in.Group = strings.TrimSpace(in.Name), strings.TrimSpace(in.Group)
	if err := validateName("name", in.Name); err != nil {
		return domain.Permission{}, err
	}
	p, err := s.Permissions.GetByID(ctx, rc, id)
	if err != nil {
		return domain.Permission{}, err
	}
	if p.GuardName != rc.GuardOrDefault() {
		return domain.Permission{}, domain.NotFoundError{Resource: "permission"}
	}
	if err := s.Permissions.Update(ctx, rc.GuardOrDefault(), id, in); err != nil {
		return domain.Permission{}, err
	}
	utils.LogEvent(rc.RequestID, "permissions", "update", zap.Int64("permission_id", id))
	return s.Permissions.GetByID(ctx, rc, id)
}

func (s PermissionsService) Delete(ctx context.Context, rc domain.RequestContext, id int64) error {
	if err := s.Permissions.Delete(ctx, rc.GuardOrDefault(), id); err != nil {
		return err
	}
	utils.LogEvent(rc.RequestID, "permissions", "delete", zap.Int64("permission_id", id))
	return nil
}

func cleanRoleInput(in domain.RoleInput) domain.RoleInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.SyncPermissions {
		perms := make([]string, 0, len(in.Permissions))
		for _, p := range in.Permissions {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
		in.Permissions = perms
	}
	return in
}

func isProtectedRole(name string) bool {
	for _, p := range ProtectedRoles {
		if p == name {
			return true
		}
	}
	return false
}
