package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"
)

// QueryRower is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RequiredTables are the tables list and export queries read from.
var RequiredTables = []string{"users", "roles", "permissions", "user_roles", "role_permissions"}

var columnCache sync.Map

// HasTable reports whether table exists in the current schema. Lookup
// errors count as absent.
func HasTable(ctx context.Context, q QueryRower, table string) bool {
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		LIMIT 1
	`, table).Scan(&name)
	return err == nil && name.Valid
}

// HasColumn reports whether table.column exists in the current schema.
func HasColumn(ctx context.Context, q QueryRower, table, column string) bool {
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND column_name = ?
		LIMIT 1
	`, table, column).Scan(&name)
	return err == nil && name.Valid
}

// HasColumnCached is HasColumn memoized per connection pool. Only positive
// answers are cached so a migration run later is picked up.
func HasColumnCached(ctx context.Context, q QueryRower, table, column string) bool {
	key := cacheKey(q, table, column)
	if _, ok := columnCache.Load(key); ok {
		return true
	}
	if !HasColumn(ctx, q, table, column) {
		return false
	}
	columnCache.Store(key, struct{}{})
	return true
}

// MissingTables returns the entries of tables that do not exist.
func MissingTables(ctx context.Context, q QueryRower, tables []string) []string {
	var missing []string
	for _, t := range tables {
		if !HasTable(ctx, q, t) {
			missing = append(missing, t)
		}
	}
	return missing
}

// LikePattern escapes s for a LIKE '%s%' match.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

type columnKey struct {
	q      QueryRower
	table  string
	column string
}

func cacheKey(q QueryRower, table, column string) columnKey {
	return columnKey{q: q, table: table, column: column}
}
