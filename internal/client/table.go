package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

const DefaultSearchDebounce = 350 * time.Millisecond

// Fetcher loads one page of a resource. *Client implements it.
type Fetcher interface {
	List(ctx context.Context, resource string, q domain.Query) (ListResult, error)
}

// Snapshot is what a table listener sees after every applied change.
type Snapshot struct {
	Query   domain.Query
	Rows    []Row
	Meta    Meta
	Loading bool
	Err     error
	Version uint64
}

// TableController owns the state of one data table and fetches pages from
// the server. Every transition issues a new fetch; only the response of the
// latest issued fetch is applied.
type TableController struct {
	Resource string

	ctx      context.Context
	fetcher  Fetcher
	debounce time.Duration
	listener func(Snapshot)

	mu            sync.Mutex
	query         domain.Query
	pendingSearch *string
	timer         *time.Timer
	// searchGen tags the current debounce timer; callbacks from older
	// timers are ignored.
	searchGen uint64
	issued        uint64
	applied       uint64
	loading       bool
	rows          []Row
	meta          Meta
	err           error

	inflight  sync.WaitGroup
	selection *Selection
}

// TableOption configures a TableController.
type TableOption func(*TableController)

// WithDebounce sets the quiet period before a search is applied.
func WithDebounce(d time.Duration) TableOption {
	return func(t *TableController) { t.debounce = d }
}

// WithListener registers fn to receive a Snapshot after each change. It is
// called outside the controller's lock.
func WithListener(fn func(Snapshot)) TableOption {
	return func(t *TableController) { t.listener = fn }
}

// WithInitialQuery starts the table from q instead of the first page.
func WithInitialQuery(q domain.Query) TableOption {
	return func(t *TableController) { t.query = q.Clone() }
}

func NewTableController(ctx context.Context, f Fetcher, resource string, opts ...TableOption) *TableController {
	t := &TableController{
		Resource:  resource,
		ctx:       ctx,
		fetcher:   f,
		debounce:  DefaultSearchDebounce,
		query:     domain.NewQuery(),
		selection: NewSelection(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.query.IDs = nil
	return t
}

// Load fetches the current state.
func (t *TableController) Load() { t.mutate(func(*domain.Query) {}) }

// Refresh re-fetches the current page.
func (t *TableController) Refresh() { t.Load() }

// SetSearch records a search term. Only the value that survives the debounce
// period is applied, and applying it resets the page to 1.
func (t *TableController) SetSearch(s string) {
	s = strings.TrimSpace(s)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingSearch = &s
	if t.timer != nil {
		t.timer.Stop()
	}
	t.searchGen++
	gen := t.searchGen
	t.timer = time.AfterFunc(t.debounce, func() { t.settleSearch(gen) })
}

// FlushSearch applies a pending search immediately.
func (t *TableController) FlushSearch() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.searchGen++
	gen := t.searchGen
	t.mu.Unlock()
	t.settleSearch(gen)
}

func (t *TableController) settleSearch(gen uint64) {
	t.mu.Lock()
	if gen != t.searchGen {
		t.mu.Unlock()
		return
	}
	pending := t.pendingSearch
	t.pendingSearch = nil
	t.timer = nil
	if pending == nil || (*pending == t.query.Search && t.issued > 0) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.mutate(func(q *domain.Query) {
		q.Search = *pending
		q.Page = 1
	})
}

// SetSort orders by field; page goes back to 1, search and filters stay.
func (t *TableController) SetSort(field, dir string) {
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir != domain.SortDesc {
		dir = domain.SortAsc
	}
	t.mutate(func(q *domain.Query) {
		q.SortField = strings.TrimSpace(field)
		q.SortDir = dir
		q.Page = 1
	})
}

// ToggleSort sorts by field ascending, or flips the direction when the
// table is already sorted by field.
func (t *TableController) ToggleSort(field string) {
	t.mu.Lock()
	dir := domain.SortAsc
	if t.query.SortField == field && t.query.SortDir == domain.SortAsc {
		dir = domain.SortDesc
	}
	t.mu.Unlock()
	t.SetSort(field, dir)
}

func (t *TableController) SetPageSize(n int) {
	if n < 1 {
		n = domain.DefaultPageSize
	}
	t.mutate(func(q *domain.Query) {
		q.PageSize = n
		q.Page = 1
	})
}

// SetFilter sets or, with an empty value, clears one filter.
func (t *TableController) SetFilter(key, value string) {
	value = strings.TrimSpace(value)
	t.mutate(func(q *domain.Query) {
		if value == "" {
			delete(q.Filters, key)
		} else {
			if q.Filters == nil {
				q.Filters = map[string]string{}
			}
			q.Filters[key] = value
		}
		q.Page = 1
	})
}

func (t *TableController) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	t.mutate(func(q *domain.Query) { q.Page = p })
}

func (t *TableController) NextPage() {
	t.mu.Lock()
	p, last := t.query.Page, t.meta.LastPage
	t.mu.Unlock()
	if last > 0 && p >= last {
		return
	}
	t.SetPage(p + 1)
}

func (t *TableController) PrevPage() {
	t.mu.Lock()
	p := t.query.Page
	t.mu.Unlock()
	if p > 1 {
		t.SetPage(p - 1)
	}
}

// Query returns a copy of the descriptor the table currently shows.
func (t *TableController) Query() domain.Query {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query.Clone()
}

func (t *TableController) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *TableController) Selection() *Selection { return t.selection }

// SelectAllVisible selects the rows of the current page only.
func (t *TableController) SelectAllVisible() {
	t.selection.SelectVisible(t.Snapshot().Rows)
}

// DeselectAllVisible removes the current page's rows from the selection.
func (t *TableController) DeselectAllVisible() {
	t.selection.DeselectVisible(t.Snapshot().Rows)
}

// SelectAcrossFiltered replaces the selection with every id matching the
// current search and filters, so later operations use explicit ids. At most
// domain.MaxExplicitIDs ids are collected; truncated reports whether the
// result had more.
func (t *TableController) SelectAcrossFiltered(ctx context.Context) (truncated bool, err error) {
	base := t.Query()
	base.PageSize = domain.MaxPageSize

	var ids []int64
	for page := 1; ; page++ {
		base.Page = page
		res, err := t.fetcher.List(ctx, t.Resource, base)
		if err != nil {
			return false, err
		}
		for _, r := range res.Rows {
			if len(ids) == domain.MaxExplicitIDs {
				truncated = true
				break
			}
			ids = append(ids, r.ID())
		}
		if truncated || len(res.Rows) == 0 || page >= res.Meta.LastPage {
			break
		}
	}
	t.selection.replaceAcross(ids)
	return truncated, nil
}

// Wait blocks until every issued fetch has returned.
func (t *TableController) Wait() { t.inflight.Wait() }

// Close stops a pending debounce.
func (t *TableController) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.searchGen++
	t.pendingSearch = nil
}

func (t *TableController) mutate(fn func(q *domain.Query)) {
	t.mu.Lock()
	fn(&t.query)
	t.issued++
	version := t.issued
	q := t.query.Clone()
	t.loading = true
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	t.inflight.Add(1)
	go t.fetch(version, q)
}

func (t *TableController) fetch(version uint64, q domain.Query) {
	defer t.inflight.Done()
	res, err := t.fetcher.List(t.ctx, t.Resource, q)

	t.mu.Lock()
	if version != t.issued {
		t.mu.Unlock()
		utils.L().Debug("stale table response dropped",
			zap.String("resource", t.Resource),
			zap.Uint64("version", version),
			zap.Uint64("latest", t.issued),
		)
		return
	}
	t.applied = version
	t.loading = false
	if err != nil {
		t.err = err
	} else {
		t.err = nil
		t.rows = res.Rows
		t.meta = res.Meta
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

func (t *TableController) snapshotLocked() Snapshot {
	return Snapshot{
		Query:   t.query.Clone(),
		Rows:    append([]Row(nil), t.rows...),
		Meta:    t.meta,
		Loading: t.loading,
		Err:     t.err,
		Version: t.applied,
	}
}

func (t *TableController) notify(s Snapshot) {
	if t.listener != nil {
		t.listener(s)
	}
}
