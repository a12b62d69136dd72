package services

import (
	"strconv"
	"strings"

	"hive/internal/domain"
	"hive/internal/utils"
)

// SerialKey is the column key of the position-derived row number.
const SerialKey = "serial_number"

// Column is one exported column. Value must not depend on anything but
// the record.
type Column struct {
	Key    string
	Header string
	// Width is a relative weight used by the document layout.
	Width float64
	Value func(domain.Record) string
}

// Schema is the fixed, server-side column set of a resource. Column
// visibility in the live table never changes it.
type Schema struct {
	Resource string
	Title    string
	Columns  []Column
	// Sortable maps accepted sort parameters onto canonical field names.
	Sortable map[string]string
	// Landscape selects the document orientation.
	Landscape bool
}

// SortField returns the canonical sort field for the requested one.
func (s Schema) SortField(requested string) (string, error) {
	if requested == "" {
		return "", nil
	}
	if f, ok := s.Sortable[requested]; ok {
		return f, nil
	}
	return "", domain.ValidationError{Field: "sortCol", Msg: "cannot sort " + s.Resource + " by " + requested}
}

// Headers returns "#" followed by the column headers.
func (s Schema) Headers() []string {
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, "#")
	for _, c := range s.Columns {
		out = append(out, c.Header)
	}
	return out
}

// Cells renders one record at output position pos (1-based).
func (s Schema) Cells(pos int, rec domain.Record) []string {
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, strconv.Itoa(pos))
	for _, c := range s.Columns {
		out = append(out, c.Value(rec))
	}
	return out
}

// UsersSchema is the users report.
func UsersSchema() Schema {
	return Schema{
		Resource: domain.ResourceUsers,
		Title:    "Users Report",
		Columns: []Column{
			{Key: "name", Header: "Name", Width: 3, Value: userValue(func(u domain.User) string { return u.Name })},
			{Key: "email", Header: "Email", Width: 3, Value: userValue(func(u domain.User) string { return u.Email })},
			{Key: "role", Header: "Role", Width: 2, Value: userValue(domain.User.PrimaryRole)},
			{Key: "status", Header: "Status", Width: 1.2, Value: userValue(domain.User.StatusLabel)},
			{Key: "joined", Header: "Joined Date", Width: 2, Value: userValue(func(u domain.User) string { return utils.FormatDateMinute(u.CreatedAt) })},
		},
		Sortable: map[string]string{
			"id":         "id",
			"name":       "name",
			"email":      "email",
			"created_at": "created_at",
			"createdAt":  "created_at",
			"joined":     "created_at",
		},
	}
}

// RolesSchema is the roles report.
func RolesSchema() Schema {
	return Schema{
		Resource: domain.ResourceRoles,
		Title:    "Roles Report",
		Columns: []Column{
			{Key: "name", Header: "Role Name", Width: 2, Value: roleValue(func(r domain.Role) string { return r.Name })},
			{Key: "permissions", Header: "Permissions", Width: 6, Value: roleValue(func(r domain.Role) string { return strings.Join(r.Permissions, ", ") })},
			{Key: "scope", Header: "Scope", Width: 1.2, Value: roleValue(domain.Role.Scope)},
			{Key: "created_at", Header: "Created At", Width: 2, Value: roleValue(func(r domain.Role) string { return utils.FormatDateMinute(r.CreatedAt) })},
		},
		Sortable: map[string]string{
			"id":         "id",
			"name":       "name",
			"created_at": "created_at",
			"createdAt":  "created_at",
		},
		Landscape: true,
	}
}

// PermissionsSchema is the permissions report.
func PermissionsSchema() Schema {
	return Schema{
		Resource: domain.ResourcePermissions,
		Title:    "Permissions Report",
		Columns: []Column{
			{Key: "name", Header: "Name", Width: 3, Value: permissionValue(func(p domain.Permission) string { return p.Name })},
			{Key: "group_name", Header: "Group", Width: 2, Value: permissionValue(domain.Permission.Group)},
			{Key: "scope", Header: "Scope", Width: 1.2, Value: permissionValue(domain.Permission.Scope)},
			{Key: "created_at", Header: "Created At", Width: 2, Value: permissionValue(func(p domain.Permission) string { return utils.FormatDateMinute(p.CreatedAt) })},
		},
		Sortable: map[string]string{
			"id":         "id",
			"name":       "name",
			"created_at": "created_at",
			"createdAt":  "created_at",
		},
	}
}

func userValue(fn func(domain.User) string) func(domain.Record) string {
	return func(rec domain.Record) string {
		switch u := rec.(type) {
		case domain.User:
			return fn(u)
		case *domain.User:
			return fn(*u)
		}
		return ""
	}
}

func roleValue(fn func(domain.Role) string) func(domain.Record) string {
	return func(rec domain.Record) string {
		switch r := rec.(type) {
		case domain.Role:
			return fn(r)
		case *domain.Role:
			return fn(*r)
		}
		return ""
	}
}

func permissionValue(fn func(domain.Permission) string) func(domain.Record) string {
	return func(rec domain.Record) string {
		switch p := rec.(type) {
		case domain.Permission:
			return fn(p)
		case *domain.Permission:
			return fn(*p)
		}
		return ""
	}
}
