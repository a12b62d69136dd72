package client

import (
	"context"
	"sync"

	"hive/internal/domain"
)

// pagedFetcher serves ids 1..total in pages and records every query.
type pagedFetcher struct {
	mu    sync.Mutex
	total int
	calls []domain.Query
	gates map[int]chan struct{}
	errs  map[int]error
}

func newPagedFetcher(total int) *pagedFetcher {
	return &pagedFetcher{total: total, gates: map[int]chan struct{}{}, errs: map[int]error{}}
}

// hold blocks fetches of page until the returned func is called.
func (f *pagedFetcher) hold(page int) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[page] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *pagedFetcher) failOn(page int, err error) {
	f.mu.Lock()
	f.errs[page] = err
	f.mu.Unlock()
}

func (f *pagedFetcher) List(_ context.Context, _ string, q domain.Query) (ListResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q.Clone())
	gate := f.gates[q.Page]
	err := f.errs[q.Page]
	total := f.total
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return ListResult{}, err
	}

	var rows []Row
	start := (q.Page - 1) * q.PageSize
	for i := start; i < start+q.PageSize && i < total; i++ {
		rows = append(rows, Row{"id": int64(i + 1), "serial_number": i - start + 1})
	}
	last := 1
	if total > 0 {
		last = (total + q.PageSize - 1) / q.PageSize
	}
	return ListResult{
		Meta: Meta{Total: total, Page: q.Page, PageSize: q.PageSize, LastPage: last},
		Rows: rows,
	}, nil
}

func (f *pagedFetcher) queries() []domain.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Query(nil), f.calls...)
}

// fakeExporter records export requests.
type fakeExporter struct {
	mu      sync.Mutex
	queries []domain.Query
	kinds   []domain.FormatKind
	file    File
	payload Payload
	err     error
	block   chan struct{}
}

func (f *fakeExporter) record(kind domain.FormatKind, q domain.Query) {
	f.mu.Lock()
	f.queries = append(f.queries, q.Clone())
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeExporter) ExportFile(_ context.Context, _ string, kind domain.FormatKind, q domain.Query) (File, error) {
	f.record(kind, q)
	return f.file, f.err
}

func (f *fakeExporter) ExportPayload(_ context.Context, _ string, kind domain.FormatKind, q domain.Query) (Payload, error) {
	f.record(kind, q)
	return f.payload, f.err
}

func (f *fakeExporter) lastQuery() domain.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return domain.Query{}
	}
	return f.queries[len(f.queries)-1]
}

// notices collects Notifier output.
type notices struct {
	mu  sync.Mutex
	all []Notice
}

func (n *notices) Notify(x Notice) {
	n.mu.Lock()
	n.all = append(n.all, x)
	n.mu.Unlock()
}

func (n *notices) levels() []NoticeLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeLevel, len(n.all))
	for i, x := range n.all {
		out[i] = x.Level
	}
	return out
}

func (n *notices) first(level NoticeLevel) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, x := range n.all {
		if x.Level == level {
			return x
		}
	}
	return Notice{}
}

// memDownloader keeps saved files in memory.
type memDownloader struct {
	saved []File
}

func (d *memDownloader) Save(_ context.Context, f File) (string, error) {
	d.saved = append(d.saved, f)
	return "/downloads/" + f.Name, nil
}

func rowIDs(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID()
	}
	return out
}
