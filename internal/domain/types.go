package domain

import "time"

// ID is used across domain entities.
type ID int64

// Guard names the authentication scope a record belongs to.
const (
	GuardCentral = "web"
	GuardTenant  = "tenant"
)

// RequestContext carries the authenticated user and tenancy for one request.
// It is passed explicitly into the resolver and exporter.
type RequestContext struct {
	UserID    ID     `json:"userId"`
	Role      string `json:"role"`
	Guard     string `json:"guard"`
	Tenant    string `json:"tenant,omitempty"`
	RequestID string `json:"-"`
	// TokenID and TokenExpiry identify the bearer token, for logout.
	TokenID     string    `json:"-"`
	TokenExpiry time.Time `json:"-"`
}

// GuardOrDefault returns the guard, falling back to the central one.
func (rc RequestContext) GuardOrDefault() string {
	if rc.Guard == "" {
		return GuardCentral
	}
	return rc.Guard
}

// ContextLabel describes where the request is running, e.g. for list meta.
func (rc RequestContext) ContextLabel() string {
	if rc.GuardOrDefault() == GuardTenant && rc.Tenant != "" {
		return rc.Tenant + ".localhost"
	}
	return "Central (localhost)"
}

// Record is one entity returned by a record store.
type Record interface {
	RecordID() int64
	// Fields is the denormalized projection used for table rows.
	Fields() map[string]any
}

// User is the users table joined with role names.
type User struct {
	ID        int64
	Name      string
	Email     string
	IsActive  bool
	Roles     []string
	CreatedAt time.Time
}

func (u User) RecordID() int64 { return u.ID }

// PrimaryRole is the first assigned role, or "Member".
func (u User) PrimaryRole() string {
	if len(u.Roles) == 0 || u.Roles[0] == "" {
		return "Member"
	}
	return u.Roles[0]
}

// StatusLabel renders IsActive for display.
func (u User) StatusLabel() string {
	if u.IsActive {
		return "Active"
	}
	return "Inactive"
}

func (u User) Fields() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.PrimaryRole(),
		"roles":      u.Roles,
		"is_active":  u.IsActive,
		"status":     u.StatusLabel(),
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type Role struct {
	ID          int64
	Name        string
	GuardName   string
	Permissions []string
	CreatedAt   time.Time
}

func (r Role) RecordID() int64 { return r.ID }

// Scope maps the guard to the label shown in tables.
func (r Role) Scope() string { return scopeLabel(r.GuardName) }

func (r Role) Fields() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"key":         r.Name,
		"guard_name":  r.GuardName,
		"scope":       r.Scope(),
		"permissions": r.Permissions,
		"created_at":  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type Permission struct {
	ID        int64
	Name      string
	GroupName string
	GuardName string
	CreatedAt time.Time
}

func (p Permission) RecordID() int64 { return p.ID }

// Group returns the group name, "General" when unset.
func (p Permission) Group() string {
	if p.GroupName == "" {
		return "General"
	}
	return p.GroupName
}

func (p Permission) Scope() string { return scopeLabel(p.GuardName) }

func (p Permission) Fields() map[string]any {
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"group_name": p.Group(),
		"guard_name": p.GuardName,
		"scope":      p.Scope(),
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func scopeLabel(guard string) string {
	if guard == GuardTenant {
		return "TENANT"
	}
	return "CENTRAL"
}

// UserStats is the summary shown above the users table.
type UserStats struct {
	TotalUsers  int `json:"total_users"`
	ActiveUsers int `json:"active_users"`
	NewThisWeek int `json:"new_this_week"`
}

// RoleInput creates or renames a role. Permissions replace the current
// set only when SyncPermissions is true.
type RoleInput struct {
	Name            string
	Permissions     []string
	SyncPermissions bool
}

// PermissionInput creates or renames a permission.
type PermissionInput struct {
	Name  string
	Group string
}
