package repositories

import (
	"context"
	"database/sql"
	"errors"

	"hive/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// withTx runs fn in a transaction and commits when it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// conflictOr turns a unique key violation into a ConflictError.
func conflictOr(err error, resource, msg string) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return domain.ConflictError{Resource: resource, Msg: msg, Err: err}
	}
	return err
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func execTx(ctx context.Context, tx *sql.Tx, b sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

// mustAffect returns NotFound when res changed no rows.
func mustAffect(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{Resource: resource}
	}
	return nil
}

// roleIDByName resolves a role name within guard.
func roleIDByName(ctx context.Context, tx *sql.Tx, name, guard string) (int64, error) {
	query, args, err := sq.Select("id").From("roles").
		Where(sq.Eq{"name": name, "guard_name": guard}).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ValidationError{Field: "role", Msg: "does not exist"}
		}
		return 0, err
	}
	return id, nil
}
