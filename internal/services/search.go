package services

import (
	"context"

	"hive/internal/domain"
)

// SearchRequest is what the resolver asks of a search provider.
// Query.IDs, when set, restricts the result to that id set.
type SearchRequest struct {
	Query  domain.Query
	Guard  string
	Offset int
	// Limit 0 means no limit.
	Limit int
	// PinID, when non-zero, must be ordered first if it matches.
	PinID int64
}

// SearchResult holds ids in provider order and the total match count.
type SearchResult struct {
	IDs   []int64
	Total int
}

// SearchProvider is a ranked id source. Its order is authoritative.
type SearchProvider interface {
	Search(ctx context.Context, resource string, req SearchRequest) (SearchResult, error)
}

// RecordStore loads full records by id. Result order is not meaningful.
// A store may return a non-nil error together with the records it could
// load; the resolver keeps those.
type RecordStore interface {
	FetchByIDs(ctx context.Context, rc domain.RequestContext, ids []int64) ([]domain.Record, error)
}

// PinMode decides when a pinned record is forced to the top.
type PinMode string

const (
	PinOff         PinMode = "off"
	PinDefaultView PinMode = "default"
	PinAlways      PinMode = "always"
)

// ParsePinMode maps a config value onto a mode, defaulting to PinDefaultView.
func ParsePinMode(s string) PinMode {
	switch PinMode(s) {
	case PinOff, PinAlways:
		return PinMode(s)
	}
	return PinDefaultView
}

// PinRule is a per-resource presentation policy, not a data invariant.
type PinRule struct {
	ID   int64
	Mode PinMode
}

// Applies reports whether the rule is active for q.
func (p PinRule) Applies(q domain.Query) bool {
	if p.ID <= 0 {
		return false
	}
	switch p.Mode {
	case PinAlways:
		return true
	case PinDefaultView:
		return q.IsDefaultView()
	}
	return false
}

// pinFirst moves the pinned id to the front, keeping the rest in order.
func pinFirst(records []domain.Record, id int64) []domain.Record {
	for i, rec := range records {
		if rec.RecordID() != id {
			continue
		}
		if i == 0 {
			return records
		}
		out := make([]domain.Record, 0, len(records))
		out = append(out, rec)
		out = append(out, records[:i]...)
		return append(out, records[i+1:]...)
	}
	return records
}
