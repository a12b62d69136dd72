package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

// Scope of a client export.
type Scope string

const (
	ScopeFiltered Scope = "filtered"
	ScopeSelected Scope = "selected"
)

// ErrExportBusy is returned when an export is already running on a trigger.
var ErrExportBusy = errors.New("an export is already running")

// NoticeLevel is the kind of user feedback.
type NoticeLevel string

const (
	NoticeLoading NoticeLevel = "loading"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is one piece of feedback about an export.
type Notice struct {
	Level   NoticeLevel
	Format  domain.FormatKind
	Message string
}

// Notifier shows export feedback to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Exporter is the part of *Client the trigger needs.
type Exporter interface {
	ExportFile(ctx context.Context, resource string, kind domain.FormatKind, q domain.Query) (File, error)
	ExportPayload(ctx context.Context, resource string, kind domain.FormatKind, q domain.Query) (Payload, error)
}

// QuerySource supplies the table's descriptor and selection.
type QuerySource interface {
	Query() domain.Query
	Selection() *Selection
}

// ExportTrigger runs exports for one table. It keeps its own busy flag so
// an export never blocks the table.
type ExportTrigger struct {
	API        Exporter
	Table      QuerySource
	Resource   string
	Notifier   Notifier
	Downloader Downloader
	Clipboard  Clipboard
	// Fallback receives clipboard text the system clipboard refused.
	Fallback *FallbackClipboard
	Opener   Opener
	// PrintDir is where print documents are written before opening.
	PrintDir string
	Now      func() time.Time

	busy atomic.Bool
}

// Busy reports whether an export is running.
func (t *ExportTrigger) Busy() bool { return t.busy.Load() }

// Trigger exports the table's current result, or only the selected ids when
// scope is ScopeSelected. Warnings (truncation, clipboard fallback, blocked
// print view) are reported through the Notifier and do not fail the call.
func (t *ExportTrigger) Trigger(ctx context.Context, kind domain.FormatKind, scope Scope) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrExportBusy
	}
	defer t.busy.Store(false)

	q, err := t.descriptor(scope)
	if err != nil {
		t.notify(NoticeError, kind, err.Error())
		return err
	}

	t.notify(NoticeLoading, kind, "Preparing "+label(kind)+"...")
	start := time.Now()
	var out outcome
	switch {
	case kind.IsFile():
		out, err = t.file(ctx, kind, q)
	case kind == domain.FormatClipboard:
		out, err = t.copy(ctx, q)
	case kind == domain.FormatPrint:
		out, err = t.print(ctx, q)
	default:
		err = domain.ValidationError{Field: "type", Msg: fmt.Sprintf("unsupported export format %q", kind)}
	}
	if err != nil {
		utils.L().Warn("export failed",
			zap.String("resource", t.Resource),
			zap.String("format", string(kind)),
			zap.Error(err),
		)
		t.notify(NoticeError, kind, exportErrorMessage(err))
		return err
	}

	utils.L().Info("export finished",
		zap.String("resource", t.Resource),
		zap.String("format", string(kind)),
		zap.String("scope", string(scope)),
		zap.Bool("truncated", out.truncated),
		zap.Duration("took", time.Since(start)),
	)
	if out.warn != nil {
		t.notify(NoticeWarning, kind, out.warn.Error())
	}
	if out.truncated {
		t.notify(NoticeWarning, kind, "Export was truncated; not every matching row is included.")
	}
	t.notify(NoticeSuccess, kind, out.msg)
	return nil
}

type outcome struct {
	msg       string
	truncated bool
	warn      error
}

func (t *ExportTrigger) descriptor(scope Scope) (domain.Query, error) {
	q := domain.NewQuery()
	if t.Table != nil {
		q = t.Table.Query()
	}
	q.IDs = nil
	switch scope {
	case ScopeFiltered, "":
	case ScopeSelected:
		if t.Table == nil || t.Table.Selection().Count() == 0 {
			return q, domain.ValidationError{Field: "ids", Msg: "no rows selected"}
		}
		q.IDs = t.Table.Selection().IDs()
	default:
		return q, domain.ValidationError{Field: "scope", Msg: fmt.Sprintf("unknown export scope %q", scope)}
	}
	return q, nil
}

func (t *ExportTrigger) file(ctx context.Context, kind domain.FormatKind, q domain.Query) (outcome, error) {
	f, err := t.API.ExportFile(ctx, t.Resource, kind, q)
	if err != nil {
		return outcome{}, err
	}
	if !f.Suggested {
		f.Name = FilenameFrom("", kind, t.now())
	}
	if t.Downloader == nil {
		return outcome{}, errors.New("no downloader configured")
	}
	path, err := t.Downloader.Save(ctx, f)
	if err != nil {
		return outcome{}, fmt.Errorf("save export: %w", err)
	}
	return outcome{msg: "Downloaded " + path, truncated: f.Truncated}, nil
}

func (t *ExportTrigger) copy(ctx context.Context, q domain.Query) (outcome, error) {
	p, err := t.API.ExportPayload(ctx, t.Resource, domain.FormatClipboard, q)
	if err != nil {
		return outcome{}, err
	}
	text := ToTSV(p)
	out := outcome{msg: fmt.Sprintf("Copied %d rows", len(p.Data)), truncated: p.Truncated}

	clipErr := errors.New("no clipboard available")
	if t.Clipboard != nil {
		if clipErr = t.Clipboard.WriteText(text); clipErr == nil {
			return out, nil
		}
	}

	fb := t.Fallback
	if fb == nil {
		fb = &FallbackClipboard{}
	}
	if err := fb.WriteText(text); err != nil {
		return outcome{}, ClipboardDeniedError{Err: errors.Join(clipErr, err)}
	}
	out.warn = ClipboardDeniedError{FallbackPath: fb.LastPath, Err: clipErr}
	return out, nil
}

func (t *ExportTrigger) print(ctx context.Context, q domain.Query) (outcome, error) {
	p, err := t.API.ExportPayload(ctx, t.Resource, domain.FormatPrint, q)
	if err != nil {
		return outcome{}, err
	}
	now := t.now()
	doc, err := RenderPrint(reportTitle(t.Resource), p, now)
	if err != nil {
		return outcome{}, fmt.Errorf("render print view: %w", err)
	}

	dir := t.PrintDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_print_%s.html", utils.SafeFilenamePart(t.Resource), utils.FileStamp(now)))
	if err := writeAtomic(dir, path, doc); err != nil {
		return outcome{}, err
	}

	out := outcome{msg: fmt.Sprintf("Opened print view with %d rows", len(p.Data)), truncated: p.Truncated}
	if t.Opener == nil {
		out.msg = fmt.Sprintf("Print view with %d rows saved", len(p.Data))
		out.warn = PopupBlockedError{Path: path, Err: errors.New("no opener configured")}
		return out, nil
	}
	if err := t.Opener.Open(path); err != nil {
		out.msg = fmt.Sprintf("Print view with %d rows saved", len(p.Data))
		out.warn = PopupBlockedError{Path: path, Err: err}
	}
	return out, nil
}

func reportTitle(resource string) string {
	if resource == "" {
		return "Report"
	}
	return strings.ToUpper(resource[:1]) + resource[1:] + " report"
}

func (t *ExportTrigger) notify(level NoticeLevel, kind domain.FormatKind, msg string) {
	if t.Notifier == nil || msg == "" {
		return
	}
	t.Notifier.Notify(Notice{Level: level, Format: kind, Message: msg})
}

func (t *ExportTrigger) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func label(kind domain.FormatKind) string {
	switch kind {
	case domain.FormatSpreadsheet:
		return "Excel export"
	case domain.FormatCommaSeparated:
		return "CSV export"
	case domain.FormatDocument:
		return "PDF export"
	case domain.FormatClipboard:
		return "copy"
	case domain.FormatPrint:
		return "print view"
	}
	return "export"
}

func exportErrorMessage(err error) string {
	switch {
	case domain.IsSearchUnavailable(err):
		return "Search is temporarily unavailable, try again shortly."
	case domain.IsUnauthorized(err):
		return "Your session has expired, sign in again."
	case domain.IsForbidden(err):
		return "You are not allowed to export this data."
	case errors.Is(err, context.DeadlineExceeded):
		return "The export took too long."
	}
	return "Export failed: " + err.Error()
}
