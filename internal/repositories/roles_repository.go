package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intconfig "hive/internal/config"
	"hive/internal/domain"

	sq "github.com/Masterminds/squirrel"
)

var errNoDB = errors.New("database not connected")

// RolesRepository loads roles with their permission names.
type RolesRepository struct {
	DB *sql.DB
}

func (r RolesRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

// FetchByIDs loads roles by id in no particular order. Tenant requests only
// see tenant guard roles.
func (r RolesRepository) FetchByIDs(ctx context.Context, rc domain.RequestContext, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.db()
	if db == nil {
		return nil, errNoDB
	}

	query, args, err := guarded(sq.Select("id", "name", "guard_name", "created_at").
		From("roles").
		Where(sq.Eq{"id": ids}), rc).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles   []domain.Role
		scanErr error
	)
	for rows.Next() {
		var (
			ro        domain.Role
			createdAt sql.NullTime
		)
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.GuardName, &createdAt); err != nil {
			if scanErr == nil {
				scanErr = err
			}
			continue
		}
		ro.CreatedAt = createdAt.Time
		roles = append(roles, ro)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roleIDs := make([]int64, 0, len(roles))
	for _, ro := range roles {
		roleIDs = append(roleIDs, ro.ID)
	}
	perms, err := r.permissionNames(ctx, db, roleIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(roles))
	for _, ro := range roles {
		ro.Permissions = perms[ro.ID]
		out = append(out, ro)
	}
	if scanErr != nil {
		return out, fmt.Errorf("roles: %w", scanErr)
	}
	return out, nil
}

func (r RolesRepository) permissionNames(ctx context.Context, db *sql.DB, ids []int64) (map[int64][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sq.Select("rp.role_id", "p.name").
		From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		Where(sq.Eq{"rp.role_id": ids}).
		OrderBy("rp.role_id", "p.name").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]string, len(ids))
	for rows.Next() {
		var (
			roleID int64
			name   string
		)
		if err := rows.Scan(&roleID, &name); err != nil {
			return nil, err
		}
		out[roleID] = append(out[roleID], name)
	}
	return out, rows.Err()
}

// guarded restricts a roles or permissions query to the tenant guard when
// the request runs in a tenant.
func guarded(b sq.SelectBuilder, rc domain.RequestContext) sq.SelectBuilder {
	if rc.GuardOrDefault() == domain.GuardTenant {
		return b.Where(sq.Eq{"guard_name": domain.GuardTenant})
	}
	return b
}

// GetByID loads one role visible to rc.
func (r RolesRepository) GetByID(ctx context.Context, rc domain.RequestContext, id int64) (domain.Role, error) {
	recs, err := r.FetchByIDs(ctx, rc, []int64{id})
	if err != nil {
		return domain.Role{}, err
	}
	if len(recs) == 0 {
		return domain.Role{}, domain.NotFoundError{Resource: "role"}
	}
	return recs[0].(domain.Role), nil
}

// Create inserts a role under guard and returns its id.
func (r RolesRepository) Create(ctx context.Context, guard string, in domain.RoleInput) (int64, error) {
	db := r.db()
	if db == nil {
		return 0, errNoDB
	}
	now := time.Now().UTC()
	var id int64
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		res, err := execTx(ctx, tx, sq.Insert("roles").
			Columns("name", "guard_name", "created_at", "updated_at").
			Values(in.Name, guard, now, now))
		if err != nil {
			return conflictOr(err, "role", "name is already taken")
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		if !in.SyncPermissions {
			return nil
		}
		return syncRolePermissions(ctx, tx, id, guard, in.Permissions)
	})
	return id, err
}

// Update renames a role under guard and, when asked, replaces its
// permissions.
func (r RolesRepository) Update(ctx context.Context, guard string, id int64, in domain.RoleInput) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := execTx(ctx, tx, sq.Update("roles").
			Set("name", in.Name).
			Set("updated_at", time.Now().UTC()).
			Where(sq.Eq{"id": id, "guard_name": guard}))
		if err != nil {
			return conflictOr(err, "role", "name is already taken")
		}
		if !in.SyncPermissions {
			return nil
		}
		return syncRolePermissions(ctx, tx, id, guard, in.Permissions)
	})
}

// Delete removes a role under guard with its assignments.
func (r RolesRepository) Delete(ctx context.Context, guard string, id int64) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := execTx(ctx, tx, sq.Delete("role_permissions").Where(sq.Eq{"role_id": id})); err != nil {
			return err
		}
		if _, err := execTx(ctx, tx, sq.Delete("user_roles").Where(sq.Eq{"role_id": id})); err != nil {
			return err
		}
		res, err := execTx(ctx, tx, sq.Delete("roles").Where(sq.Eq{"id": id, "guard_name": guard}))
		if err != nil {
			return err
		}
		return mustAffect(res, "role")
	})
}

// syncRolePermissions replaces the role's permissions with names, which
// must all exist under guard.
func syncRolePermissions(ctx context.Context, tx *sql.Tx, roleID int64, guard string, names []string) error {
	var permIDs []int64
	if len(names) > 0 {
		query, args, err := sq.Select("id", "name").From("permissions").
			Where(sq.Eq{"name": names, "guard_name": guard}).
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		found := make(map[string]int64, len(names))
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return err
			}
			found[name] = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(names))
		for _, n := range names {
			id, ok := found[n]
			if !ok {
				return domain.ValidationError{Field: "permissions", Msg: "unknown permission " + n}
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			permIDs = append(permIDs, id)
		}
	}

	if _, err := execTx(ctx, tx, sq.Delete("role_permissions").Where(sq.Eq{"role_id": roleID})); err != nil {
		return err
	}
	if len(permIDs) == 0 {
		return nil
	}
	ins := sq.Insert("role_permissions").Columns("role_id", "permission_id")
	for _, pid := range permIDs {
		ins = ins.Values(roleID, pid)
	}
	_, err := execTx(ctx, tx, ins)
	return err
}
