package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	intconfig "hive/internal/config"
	intdb "hive/internal/db"
	"hive/internal/domain"

	sq "github.com/Masterminds/squirrel"
)

// PermissionsRepository loads permissions. Older schemas have no
// group_name column; those rows fall back to the default group.
type PermissionsRepository struct {
	DB *sql.DB
}

func (r PermissionsRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

// FetchByIDs loads permissions by id in no particular order. Tenant
// requests only see tenant guard permissions.
func (r PermissionsRepository) FetchByIDs(ctx context.Context, rc domain.RequestContext, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.db()
	if db == nil {
		return nil, errNoDB
	}

	query, args, err := guarded(sq.Select(permissionColumns(ctx, db)...).
		From("permissions").
		Where(sq.Eq{"id": ids}), rc).
		ToSql()
	if err != nil {
		return nil, err
	}
	perms, err := queryPermissions(ctx, db, query, args)
	out := make([]domain.Record, 0, len(perms))
	for _, p := range perms {
		out = append(out, p)
	}
	return out, err
}

// ListByGuard returns every permission of guard ordered by name, for the
// role editor.
func (r PermissionsRepository) ListByGuard(ctx context.Context, guard string) ([]domain.Permission, error) {
	db := r.db()
	if db == nil {
		return nil, errNoDB
	}
	query, args, err := sq.Select(permissionColumns(ctx, db)...).
		From("permissions").
		Where(sq.Eq{"guard_name": guard}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	return queryPermissions(ctx, db, query, args)
}

// GetByID loads one permission visible to rc.
func (r PermissionsRepository) GetByID(ctx context.Context, rc domain.RequestContext, id int64) (domain.Permission, error) {
	recs, err := r.FetchByIDs(ctx, rc, []int64{id})
	if err != nil {
		return domain.Permission{}, err
	}
	if len(recs) == 0 {
		return domain.Permission{}, domain.NotFoundError{Resource: "permission"}
	}
	return recs[0].(domain.Permission), nil
}

// Create inserts a permission under guard and returns its id. The group is
// stored only when the schema has a group_name column.
func (r PermissionsRepository) Create(ctx context.Context, guard string, in domain.PermissionInput) (int64, error) {
	db := r.db()
	if db == nil {
		return 0, errNoDB
	}
	now := time.Now().UTC()
	cols := []string{"name", "guard_name", "created_at", "updated_at"}
	vals := []any{in.Name, guard, now, now}
	if in.Group != "" && intdb.HasColumnCached(ctx, db, "permissions", "group_name") {
		cols = append(cols, "group_name")
		vals = append(vals, in.Group)
	}
	var id int64
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		res, err := execTx(ctx, tx, sq.Insert("permissions").Columns(cols...).Values(vals...))
		if err != nil {
			return conflictOr(err, "permission", "name is already taken")
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Update renames a permission under guard.
func (r PermissionsRepository) Update(ctx context.Context, guard string, id int64, in domain.PermissionInput) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	b := sq.Update("permissions").
		Set("name", in.Name).
		Set("updated_at", time.Now().UTC())
	if in.Group != "" && intdb.HasColumnCached(ctx, db, "permissions", "group_name") {
		b = b.Set("group_name", in.Group)
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := execTx(ctx, tx, b.Where(sq.Eq{"id": id, "guard_name": guard}))
		return conflictOr(err, "permission", "name is already taken")
	})
}

// Delete removes a permission under guard and detaches it from roles.
func (r PermissionsRepository) Delete(ctx context.Context, guard string, id int64) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := execTx(ctx, tx, sq.Delete("role_permissions").Where(sq.Eq{"permission_id": id})); err != nil {
			return err
		}
		res, err := execTx(ctx, tx, sq.Delete("permissions").Where(sq.Eq{"id": id, "guard_name": guard}))
		if err != nil {
			return err
		}
		return mustAffect(res, "permission")
	})
}

func permissionColumns(ctx context.Context, db *sql.DB) []string {
	group := "''"
	if intdb.HasColumnCached(ctx, db, "permissions", "group_name") {
		group = "COALESCE(group_name, '')"
	}
	return []string{"id", "name", group, "guard_name", "created_at"}
}

// queryPermissions scans permission rows. Rows that fail to scan are
// skipped and reported in the returned error alongside the rest.
func queryPermissions(ctx context.Context, db *sql.DB, query string, args []any) ([]domain.Permission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out     []domain.Permission
		scanErr error
	)
	for rows.Next() {
		var (
			p         domain.Permission
			createdAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.GroupName, &p.GuardName, &createdAt); err != nil {
			if scanErr == nil {
				scanErr = err
			}
			continue
		}
		p.CreatedAt = createdAt.Time
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return out, fmt.Errorf("permissions: %w", scanErr)
	}
	return out, nil
}
