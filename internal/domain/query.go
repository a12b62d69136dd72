package domain

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPageSize  = 10
	MaxPageSize      = 100
	MaxExplicitIDs   = 1000
	filterDateLayout = "2006-01-02"
)

// Filter keys understood by list and export endpoints.
const (
	FilterStatus   = "status"
	FilterRole     = "role"
	FilterDateFrom = "date_from"
	FilterDateTo   = "date_to"
	FilterScope    = "scope"
)

var filterKeys = []string{FilterStatus, FilterRole, FilterDateFrom, FilterDateTo, FilterScope}

// Query is the complete description of which rows, in what order, on what page.
// When IDs is non-empty it replaces Search and Filters for row selection;
// sorting and pagination still apply to the explicit set.
type Query struct {
	Search    string            `json:"search,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	SortField string            `json:"sortField,omitempty"`
	SortDir   string            `json:"sortDirection,omitempty"`
	Page      int               `json:"page"`
	PageSize  int               `json:"pageSize"`
	IDs       []int64           `json:"ids,omitempty"`
}

// NewQuery returns the default first page.
func NewQuery() Query {
	return Query{Page: 1, PageSize: DefaultPageSize, SortDir: SortAsc}
}

// HasExplicitIDs reports whether row selection is driven by IDs.
func (q Query) HasExplicitIDs() bool { return len(q.IDs) > 0 }

// HasSort reports whether the caller asked for an explicit order.
func (q Query) HasSort() bool { return q.SortField != "" }

// IsDefaultView is true for the unsearched, unfiltered, unsorted listing.
func (q Query) IsDefaultView() bool {
	return q.Search == "" && len(q.Filters) == 0 && !q.HasSort() && !q.HasExplicitIDs()
}

// Offset is the zero-based index of the first row of the page.
func (q Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// Filter returns the filter value for key, "" when unset.
func (q Query) Filter(key string) string {
	if q.Filters == nil {
		return ""
	}
	return q.Filters[key]
}

// Clone returns a deep copy so callers can mutate maps and slices freely.
func (q Query) Clone() Query {
	out := q
	if q.Filters != nil {
		out.Filters = make(map[string]string, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = v
		}
	}
	if q.IDs != nil {
		out.IDs = append([]int64(nil), q.IDs...)
	}
	return out
}

// Validate checks pagination bounds. maxPageSize <= 0 disables the upper bound.
func (q Query) Validate(maxPageSize int) error {
	if q.Page < 1 {
		return ValidationError{Field: "page", Msg: "must be a positive integer"}
	}
	if q.PageSize < 1 {
		return ValidationError{Field: "pageSize", Msg: "must be a positive integer"}
	}
	if maxPageSize > 0 && q.PageSize > maxPageSize {
		return ValidationError{Field: "pageSize", Msg: "must be at most " + strconv.Itoa(maxPageSize)}
	}
	// Page*PageSize must fit in an int so offsets never wrap.
	if q.Page > math.MaxInt/q.PageSize {
		return ValidationError{Field: "page", Msg: "is out of range"}
	}
	if q.SortDir != SortAsc && q.SortDir != SortDesc {
		return ValidationError{Field: "sortDir", Msg: "must be asc or desc"}
	}
	if len(q.IDs) > MaxExplicitIDs {
		return ValidationError{Field: "ids", Msg: "too many ids, at most " + strconv.Itoa(MaxExplicitIDs)}
	}
	return nil
}

// ParseQuery reads the list/export query parameters.
func ParseQuery(v url.Values) (Query, error) {
	q := NewQuery()
	q.Search = strings.TrimSpace(v.Get("search"))

	if s := strings.TrimSpace(v.Get("page")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, ValidationError{Field: "page", Msg: "must be a positive integer", Err: err}
		}
		q.Page = n
	}
	if s := firstNonEmpty(v, "pageSize", "per_page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, ValidationError{Field: "pageSize", Msg: "must be a positive integer", Err: err}
		}
		q.PageSize = n
	}

	q.SortField = firstNonEmpty(v, "sortCol", "sort_by")
	if dir := strings.ToLower(firstNonEmpty(v, "sortDir", "sort_direction")); dir != "" {
		if dir != SortAsc && dir != SortDesc {
			return q, ValidationError{Field: "sortDir", Msg: "must be asc or desc"}
		}
		q.SortDir = dir
	}

	for _, key := range filterKeys {
		val := strings.TrimSpace(v.Get(key))
		if val == "" || strings.EqualFold(val, "all") {
			continue
		}
		if err := validateFilter(key, val); err != nil {
			return q, err
		}
		if q.Filters == nil {
			q.Filters = map[string]string{}
		}
		q.Filters[key] = val
	}

	ids, err := ParseIDs(v.Get("ids"))
	if err != nil {
		return q, err
	}
	q.IDs = ids

	return q, nil
}

// Values encodes the query the way ParseQuery reads it.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.SortField != "" {
		v.Set("sortCol", q.SortField)
		dir := q.SortDir
		if dir == "" {
			dir = SortAsc
		}
		v.Set("sortDir", dir)
	}
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if q.Filters[k] != "" {
			v.Set(k, q.Filters[k])
		}
	}
	if len(q.IDs) > 0 {
		v.Set("ids", JoinIDs(q.IDs))
	}
	return v
}

// ParseIDs parses a comma separated id list, dropping duplicates but
// keeping first-occurrence order.
func ParseIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, ValidationError{Field: "ids", Msg: "must be comma separated positive integers", Err: err}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// JoinIDs is the inverse of ParseIDs.
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ParseFilterDate parses a date_from/date_to filter value.
func ParseFilterDate(s string) (time.Time, error) {
	return time.ParseInLocation(filterDateLayout, s, time.UTC)
}

func validateFilter(key, val string) error {
	switch key {
	case FilterStatus:
		if val != "active" && val != "inactive" {
			return ValidationError{Field: key, Msg: "must be active, inactive or all"}
		}
	case FilterScope:
		if val != "CENTRAL" && val != "TENANT" {
			return ValidationError{Field: key, Msg: "must be CENTRAL, TENANT or all"}
		}
	case FilterDateFrom, FilterDateTo:
		if _, err := ParseFilterDate(val); err != nil {
			return ValidationError{Field: key, Msg: "must be a YYYY-MM-DD date", Err: err}
		}
	}
	return nil
}

func firstNonEmpty(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return s
		}
	}
	return ""
}
