package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hive/internal/domain"
)

// fakeSearch ranks a fixed id list. Explicit id sets are ordered by id,
// descending when the query asks for it.
type fakeSearch struct {
	mu    sync.Mutex
	ids   []int64
	err   error
	calls []SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, _ string, req SearchRequest) (SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return SearchResult{}, f.err
	}

	var ids []int64
	if req.Query.HasExplicitIDs() {
		ids = append(ids, req.Query.IDs...)
		sort.Slice(ids, func(i, j int) bool {
			if req.Query.SortDir == domain.SortDesc {
				return ids[i] > ids[j]
			}
			return ids[i] < ids[j]
		})
	} else {
		ids = append(ids, f.ids...)
	}
	if req.PinID > 0 {
		for i, id := range ids {
			if id == req.PinID {
				ids = append([]int64{id}, append(ids[:i:i], ids[i+1:]...)...)
				break
			}
		}
	}

	total := len(ids)
	if req.Limit > 0 {
		start := req.Offset
		if start > total {
			start = total
		}
		end := start + req.Limit
		if end > total {
			end = total
		}
		ids = ids[start:end]
	}
	return SearchResult{IDs: ids, Total: total}, nil
}

// fakeStore returns the users it knows about in reverse request order so
// tests catch any reliance on store order.
type fakeStore struct {
	users map[int64]domain.User
	err   error
}

func (f fakeStore) FetchByIDs(_ context.Context, _ domain.RequestContext, ids []int64) ([]domain.Record, error) {
	var out []domain.Record
	for i := len(ids) - 1; i >= 0; i-- {
		if u, ok := f.users[ids[i]]; ok {
			out = append(out, u)
		}
	}
	return out, f.err
}

func makeUsers(ids ...int64) map[int64]domain.User {
	m := make(map[int64]domain.User, len(ids))
	for _, id := range ids {
		m[id] = domain.User{
			ID:        id,
			Name:      fmt.Sprintf("User %d", id),
			Email:     fmt.Sprintf("user%d@acme.test", id),
			IsActive:  id%2 == 1,
			Roles:     []string{"Editor"},
			CreatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC),
		}
	}
	return m
}

func seqIDs(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func newUsersResolver(search *fakeSearch, store RecordStore, pin PinRule) *Resolver {
	return NewResolver(search, Resource{Store: store, Schema: UsersSchema(), Pin: pin})
}

func rowIDs(rows []domain.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID()
	}
	return out
}

func serials(rows []domain.Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.SerialNumber
	}
	return out
}
