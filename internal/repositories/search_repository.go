package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	intconfig "hive/internal/config"
	intdb "hive/internal/db"
	"hive/internal/domain"
	"hive/internal/services"

	sq "github.com/Masterminds/squirrel"
)

// searchTable describes how one resource is searched in SQL.
type searchTable struct {
	table      string
	searchCols []string
	// sortCols maps canonical sort fields onto columns.
	sortCols map[string]string
	// guarded tables are restricted to the tenant guard in tenant context.
	guarded bool
}

var searchTables = map[string]searchTable{
	domain.ResourceUsers: {
		table:      "users",
		searchCols: []string{"name", "email"},
		sortCols:   map[string]string{"id": "id", "name": "name", "email": "email", "created_at": "created_at"},
	},
	domain.ResourceRoles: {
		table:      "roles",
		searchCols: []string{"name"},
		sortCols:   map[string]string{"id": "id", "name": "name", "created_at": "created_at"},
		guarded:    true,
	},
	domain.ResourcePermissions: {
		table:      "permissions",
		searchCols: []string{"name"},
		sortCols:   map[string]string{"id": "id", "name": "name", "created_at": "created_at"},
		guarded:    true,
	},
}

// SearchRepository is the SQL search provider: it ranks ids with LIKE
// search, filters and ORDER BY, and counts the matches.
type SearchRepository struct {
	DB *sql.DB
}

func (r SearchRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

// Search returns one page of ids in display order and the total match count.
func (r SearchRepository) Search(ctx context.Context, resource string, req services.SearchRequest) (services.SearchResult, error) {
	t, ok := searchTables[resource]
	if !ok {
		return services.SearchResult{}, domain.NotFoundError{Resource: "resource " + resource}
	}
	db := r.db()
	if db == nil {
		return services.SearchResult{}, errNoDB
	}

	cond, err := t.conditions(req)
	if err != nil {
		return services.SearchResult{}, err
	}

	countSQL, countArgs, err := where(sq.Select("COUNT(*)").From(t.table), cond).ToSql()
	if err != nil {
		return services.SearchResult{}, err
	}
	var total int
	if err := db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return services.SearchResult{}, fmt.Errorf("count %s: %w", t.table, err)
	}
	if total == 0 || (req.Limit > 0 && req.Offset >= total) {
		return services.SearchResult{Total: total}, nil
	}

	b := where(sq.Select("id").From(t.table), cond)
	if req.PinID > 0 {
		b = b.OrderByClause("(id = ?) DESC", req.PinID)
	}
	b = b.OrderBy(t.orderBy(req.Query)...)
	if req.Limit > 0 {
		b = b.Limit(uint64(req.Limit)).Offset(uint64(req.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return services.SearchResult{}, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return services.SearchResult{}, fmt.Errorf("search %s: %w", t.table, err)
	}
	defer rows.Close()

	ids := make([]int64, 0, req.Limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return services.SearchResult{}, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return services.SearchResult{}, err
	}
	return services.SearchResult{IDs: ids, Total: total}, nil
}

func (t searchTable) conditions(req services.SearchRequest) (sq.And, error) {
	q := req.Query
	cond := sq.And{}

	if q.HasExplicitIDs() {
		cond = append(cond, sq.Eq{"id": q.IDs})
	}
	if t.guarded && req.Guard == domain.GuardTenant {
		cond = append(cond, sq.Eq{"guard_name": domain.GuardTenant})
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pat := intdb.LikePattern(s)
		or := sq.Or{}
		for _, c := range t.searchCols {
			or = append(or, sq.Like{c: pat})
		}
		cond = append(cond, or)
	}

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := q.Filters[key]
		switch key {
		case domain.FilterStatus:
			if t.table == "users" {
				cond = append(cond, sq.Eq{"is_active": val == "active"})
			}
		case domain.FilterRole:
			if t.table == "users" {
				cond = append(cond, sq.Expr(
					"EXISTS (SELECT 1 FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ur.user_id = users.id AND ro.name = ?)", val))
			}
		case domain.FilterScope:
			if t.guarded {
				guard := domain.GuardCentral
				if strings.EqualFold(val, "TENANT") {
					guard = domain.GuardTenant
				}
				cond = append(cond, sq.Eq{"guard_name": guard})
			}
		case domain.FilterDateFrom:
			d, err := domain.ParseFilterDate(val)
			if err != nil {
				return nil, domain.ValidationError{Field: key, Msg: "must be YYYY-MM-DD", Err: err}
			}
			cond = append(cond, sq.GtOrEq{"created_at": d})
		case domain.FilterDateTo:
			d, err := domain.ParseFilterDate(val)
			if err != nil {
				return nil, domain.ValidationError{Field: key, Msg: "must be YYYY-MM-DD", Err: err}
			}
			cond = append(cond, sq.Lt{"created_at": d.AddDate(0, 0, 1)})
		}
	}
	return cond, nil
}

func where(b sq.SelectBuilder, cond sq.And) sq.SelectBuilder {
	if len(cond) == 0 {
		return b
	}
	return b.Where(cond)
}

// orderBy returns the ORDER BY terms, always ending with id so that equal
// sort keys keep a stable order across pages.
func (t searchTable) orderBy(q domain.Query) []string {
	col, ok := t.sortCols[q.SortField]
	if !ok || col == "id" {
		dir := "ASC"
		if ok && q.SortDir == domain.SortDesc {
			dir = "DESC"
		}
		return []string{"id " + dir}
	}
	dir := "ASC"
	if q.SortDir == domain.SortDesc {
		dir = "DESC"
	}
	return []string{col + " " + dir, "id ASC"}
}
