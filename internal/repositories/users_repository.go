package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intconfig "hive/internal/config"
	"hive/internal/domain"
	"hive/internal/services"

	sq "github.com/Masterminds/squirrel"
)

var userColumns = []string{"u.id", "u.name", "u.email", "u.is_active", "u.created_at"}

// UsersRepository reads and updates the users table together with the
// role names assigned through user_roles.
type UsersRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r UsersRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func (r UsersRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// FetchByIDs loads users by id in no particular order. Rows that fail to
// scan are skipped and reported in the returned error alongside the rest.
func (r UsersRepository) FetchByIDs(ctx context.Context, rc domain.RequestContext, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.db()
	if db == nil {
		return nil, errNoDB
	}

	query, args, err := sq.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.id": ids}).
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
		users   []domain.User
		scanErr error
	)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			if scanErr == nil {
				scanErr = err
			}
			continue
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roles, err := r.roleNames(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Record, 0, len(users))
	for _, u := range users {
		u.Roles = roles[u.ID]
		out = append(out, u)
	}
	if scanErr != nil {
		return out, fmt.Errorf("users: %w", scanErr)
	}
	return out, nil
}

// GetByID loads a single user with roles.
func (r UsersRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	recs, err := r.FetchByIDs(ctx, domain.RequestContext{}, []int64{id})
	if err != nil {
		return domain.User{}, err
	}
	if len(recs) == 0 {
		return domain.User{}, domain.NotFoundError{Resource: "user"}
	}
	return recs[0].(domain.User), nil
}

// FindCredentials loads the user and password hash for login.
func (r UsersRepository) FindCredentials(ctx context.Context, email string) (services.Credentials, error) {
	db := r.db()
	if db == nil {
		return services.Credentials{}, errNoDB
	}
	query, args, err := sq.Select(append(append([]string{}, userColumns...), "u.password")...).
		From("users u").
		Where(sq.Eq{"u.email": strings.ToLower(strings.TrimSpace(email))}).
		Limit(1).
		ToSql()
	if err != nil {
		return services.Credentials{}, err
	}

	var (
		c         services.Credentials
		active    bool
		createdAt sql.NullTime
	)
	err = db.QueryRowContext(ctx, query, args...).Scan(
		&c.User.ID, &c.User.Name, &c.User.Email, &active, &createdAt, &c.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.Credentials{}, domain.NotFoundError{Resource: "user"}
		}
		return services.Credentials{}, err
	}
	c.User.IsActive = active
	c.User.CreatedAt = createdAt.Time

	roles, err := r.roleNames(ctx, db, []int64{c.User.ID})
	if err != nil {
		return services.Credentials{}, err
	}
	c.User.Roles = roles[c.User.ID]
	return c, nil
}

// Stats counts all, active and recently created users.
func (r UsersRepository) Stats(ctx context.Context) (domain.UserStats, error) {
	db := r.db()
	if db == nil {
		return domain.UserStats{}, errNoDB
	}
	weekAgo := r.now().UTC().AddDate(0, 0, -7)
	query, args, err := sq.Select("COUNT(*)").
		Column("COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)", weekAgo)).
		From("users").
		ToSql()
	if err != nil {
		return domain.UserStats{}, err
	}
	var s domain.UserStats
	if err := db.QueryRowContext(ctx, query, args...).Scan(&s.TotalUsers, &s.ActiveUsers, &s.NewThisWeek); err != nil {
		return domain.UserStats{}, err
	}
	return s, nil
}

// SetActive updates is_active.
func (r UsersRepository) SetActive(ctx context.Context, id int64, active bool) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	query, args, err := sq.Update("users").
		Set("is_active", active).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError{Resource: "user"}
	}
	return nil
}

func (r UsersRepository) roleNames(ctx context.Context, db *sql.DB, ids []int64) (map[int64][]string, error) {
	query, args, err := sq.Select("ur.user_id", "ro.name").
		From("user_roles ur").
		Join("roles ro ON ro.id = ur.role_id").
		Where(sq.Eq{"ur.user_id": ids}).
		OrderBy("ur.user_id", "ro.id").
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
			userID int64
			name   string
		)
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], name)
	}
	return out, rows.Err()
}

func scanUser(rows *sql.Rows) (domain.User, error) {
	var (
		u         domain.User
		createdAt sql.NullTime
	)
	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &createdAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = createdAt.Time
	return u, nil
}

// Create inserts an active user holding one role and returns its id.
func (r UsersRepository) Create(ctx context.Context, u services.NewUser) (int64, error) {
	db := r.db()
	if db == nil {
		return 0, errNoDB
	}
	now := r.now().UTC()
	var id int64
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		roleID, err := roleIDByName(ctx, tx, u.Role, u.Guard)
		if err != nil {
			return err
		}
		res, err := execTx(ctx, tx, sq.Insert("users").
			Columns("name", "email", "password", "is_active", "created_at", "updated_at").
			Values(u.Name, u.Email, u.PasswordHash, true, now, now))
		if err != nil {
			return conflictOr(err, "user", "email is already taken")
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return setUserRole(ctx, tx, id, roleID)
	})
	return id, err
}

// Update writes the fields set in ch. A role change replaces every role
// the user holds.
func (r UsersRepository) Update(ctx context.Context, id int64, ch services.UserChanges) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		b := sq.Update("users").Set("updated_at", r.now().UTC())
		if ch.Name != nil {
			b = b.Set("name", *ch.Name)
		}
		if ch.Email != nil {
			b = b.Set("email", *ch.Email)
		}
		if ch.PasswordHash != nil {
			b = b.Set("password", *ch.PasswordHash)
		}
		if _, err := execTx(ctx, tx, b.Where(sq.Eq{"id": id})); err != nil {
			return conflictOr(err, "user", "email is already taken")
		}
		if ch.Role == nil {
			return nil
		}
		roleID, err := roleIDByName(ctx, tx, *ch.Role, ch.Guard)
		if err != nil {
			return err
		}
		return setUserRole(ctx, tx, id, roleID)
	})
}

// Delete removes the user and its role assignments.
func (r UsersRepository) Delete(ctx context.Context, id int64) error {
	db := r.db()
	if db == nil {
		return errNoDB
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := execTx(ctx, tx, sq.Delete("user_roles").Where(sq.Eq{"user_id": id})); err != nil {
			return err
		}
		res, err := execTx(ctx, tx, sq.Delete("users").Where(sq.Eq{"id": id}))
		if err != nil {
			return err
		}
		return mustAffect(res, "user")
	})
}

func setUserRole(ctx context.Context, tx *sql.Tx, userID, roleID int64) error {
	if _, err := execTx(ctx, tx, sq.Delete("user_roles").Where(sq.Eq{"user_id": userID})); err != nil {
		return err
	}
	_, err := execTx(ctx, tx, sq.Insert("user_roles").Columns("user_id", "role_id").Values(userID, roleID))
	return err
}
