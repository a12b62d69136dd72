package services

import (
	"context"
	"errors"
	"fmt"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

// Resource binds a resource name to its record store, report schema and
// pin rule.
type Resource struct {
	Store  RecordStore
	Schema Schema
	Pin    PinRule
}

// Resolver turns a query into a stably ordered page of rows. The search
// provider decides order; the record store only supplies data.
type Resolver struct {
	Search    SearchProvider
	Resources map[string]Resource
}

// NewResolver wires a resolver for the given resources keyed by schema name.
func NewResolver(search SearchProvider, resources ...Resource) *Resolver {
	m := make(map[string]Resource, len(resources))
	for _, r := range resources {
		m[r.Schema.Resource] = r
	}
	return &Resolver{Search: search, Resources: m}
}

// Resource returns the registration for name.
func (r *Resolver) Resource(name string) (Resource, error) {
	res, ok := r.Resources[name]
	if !ok {
		return Resource{}, domain.NotFoundError{Resource: "resource " + name}
	}
	return res, nil
}

// Resolve returns the requested page. len(Rows) <= PageSize and
// len(Rows) <= Total always hold; ids without a record are dropped and
// reduce Total instead of failing.
func (r *Resolver) Resolve(ctx context.Context, rc domain.RequestContext, resource string, q domain.Query) (domain.Page, error) {
	res, err := r.Resource(resource)
	if err != nil {
		return domain.Page{}, err
	}
	q = q.Clone()
	if q.SortDir == "" {
		q.SortDir = domain.SortAsc
	}
	if err := q.Validate(0); err != nil {
		return domain.Page{}, err
	}
	// The pin decision looks at what the caller asked for, before the
	// sort field is canonicalized.
	pin := res.Pin.Applies(q)
	if q.SortField, err = res.Schema.SortField(q.SortField); err != nil {
		return domain.Page{}, err
	}

	var page domain.Page
	if q.HasExplicitIDs() {
		page, err = r.resolveExplicit(ctx, rc, resource, res, q, pin)
	} else {
		page, err = r.resolveSearch(ctx, rc, resource, res, q, pin)
	}
	if err != nil {
		return domain.Page{}, err
	}

	utils.L().Debug("resolved page",
		zap.String("request_id", rc.RequestID),
		zap.String("resource", resource),
		zap.Int("page", q.Page),
		zap.Int("rows", len(page.Rows)),
		zap.Int("total", page.Total),
	)
	return page, nil
}

func (r *Resolver) resolveSearch(ctx context.Context, rc domain.RequestContext, resource string, res Resource, q domain.Query, pin bool) (domain.Page, error) {
	req := SearchRequest{
		Query:  q,
		Guard:  rc.GuardOrDefault(),
		Offset: q.Offset(),
		Limit:  q.PageSize,
	}
	if pin {
		req.PinID = res.Pin.ID
	}

	result, err := r.search(ctx, resource, req)
	if err != nil {
		return domain.Page{}, err
	}
	ids := result.IDs
	if len(ids) > q.PageSize {
		ids = ids[:q.PageSize]
	}

	records, err := r.fetchOrdered(ctx, rc, resource, res.Store, ids)
	if err != nil {
		return domain.Page{}, err
	}
	if pin {
		records = pinFirst(records, res.Pin.ID)
	}

	total := result.Total - (len(ids) - len(records))
	if floor := q.Offset() + len(records); len(records) > 0 && total < floor {
		total = floor
	}
	return domain.Page{Rows: domain.NumberRows(records), Total: total}, nil
}

func (r *Resolver) resolveExplicit(ctx context.Context, rc domain.RequestContext, resource string, res Resource, q domain.Query, pin bool) (domain.Page, error) {
	ordered := q.IDs
	if q.HasSort() {
		// Only the order is asked of the provider; search text and filters
		// do not apply to an explicit set.
		sortOnly := domain.Query{SortField: q.SortField, SortDir: q.SortDir, IDs: q.IDs, Page: 1, PageSize: len(q.IDs)}
		result, err := r.search(ctx, resource, SearchRequest{Query: sortOnly, Guard: rc.GuardOrDefault()})
		if err != nil {
			return domain.Page{}, err
		}
		ordered = result.IDs
	}

	records, err := r.fetchOrdered(ctx, rc, resource, res.Store, ordered)
	if err != nil {
		return domain.Page{}, err
	}
	if pin {
		records = pinFirst(records, res.Pin.ID)
	}

	total := len(records)
	start := q.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return domain.Page{Rows: domain.NumberRows(records[start:end]), Total: total}, nil
}

func (r *Resolver) search(ctx context.Context, resource string, req SearchRequest) (SearchResult, error) {
	if r.Search == nil {
		return SearchResult{}, domain.SearchUnavailableError{Resource: resource, Err: errors.New("no search provider configured")}
	}
	result, err := r.Search.Search(ctx, resource, req)
	if err != nil {
		if domain.IsValidation(err) || domain.IsSearchUnavailable(err) {
			return SearchResult{}, err
		}
		return SearchResult{}, domain.SearchUnavailableError{Resource: resource, Err: err}
	}
	return result, nil
}

// fetchOrdered loads ids and returns the records in the order of ids,
// dropping ids the store had no record for.
func (r *Resolver) fetchOrdered(ctx context.Context, rc domain.RequestContext, resource string, store RecordStore, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if store == nil {
		return nil, domain.InternalError{Msg: "no record store for " + resource}
	}

	fetched, err := store.FetchByIDs(ctx, rc, ids)
	if err != nil {
		if len(fetched) == 0 {
			return nil, domain.InternalError{Msg: "record lookup failed", Err: fmt.Errorf("%s: %w", resource, err)}
		}
		utils.L().Warn("partial record lookup",
			zap.String("request_id", rc.RequestID),
			zap.String("resource", resource),
			zap.Int("requested", len(ids)),
			zap.Int("loaded", len(fetched)),
			zap.Error(err),
		)
	}

	byID := make(map[int64]domain.Record, len(fetched))
	for _, rec := range fetched {
		if rec != nil {
			byID[rec.RecordID()] = rec
		}
	}

	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
			delete(byID, id)
		}
	}
	return out, nil
}
