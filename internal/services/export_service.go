package services

import (
	"context"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

// ExportLimits caps how many rows each format family reads.
type ExportLimits struct {
	DocumentMaxRows int
	PayloadMaxRows  int
	FileMaxRows     int
}

// DefaultExportLimits mirrors the configuration defaults.
func DefaultExportLimits() ExportLimits {
	return ExportLimits{DocumentMaxRows: DefaultDocumentMaxRows, PayloadMaxRows: 10000, FileMaxRows: 100000}
}

// ExportService resolves an export job with the table's query and encodes
// the rows. It runs synchronously within one request.
type ExportService struct {
	Resolver  *Resolver
	Formatter Formatter
	Limits    ExportLimits
}

// Export resolves the whole scope of job (not just the table's current
// page) and formats it.
func (s ExportService) Export(ctx context.Context, rc domain.RequestContext, job domain.ExportJob) (Artifact, error) {
	res, err := s.Resolver.Resource(job.Resource)
	if err != nil {
		return Artifact{}, err
	}

	limit := s.limitFor(job.Format)
	q := job.Query.Clone()
	q.Page = 1
	q.PageSize = limit
	if q.HasExplicitIDs() && len(q.IDs) < limit {
		q.PageSize = len(q.IDs)
	}

	page, err := s.Resolver.Resolve(ctx, rc, job.Resource, q)
	if err != nil {
		return Artifact{}, err
	}

	formatter := s.Formatter
	if formatter.DocumentMaxRows <= 0 {
		formatter.DocumentMaxRows = s.Limits.DocumentMaxRows
	}
	art, err := formatter.Format(page.Rows, job.Format, res.Schema)
	if err != nil {
		return Artifact{}, err
	}
	if page.Total > art.Rows {
		art.Truncated = true
	}
	if art.Payload != nil {
		art.Payload.Truncated = art.Truncated
	}

	utils.LogEvent(rc.RequestID, "export", "export_"+string(job.Format),
		zap.String("resource", job.Resource),
		zap.String("scope", string(job.Scope)),
		zap.Int("rows", art.Rows),
		zap.Int("total", page.Total),
		zap.Bool("truncated", art.Truncated),
	)
	return art, nil
}

func (s ExportService) limitFor(kind domain.FormatKind) int {
	l := s.Limits
	def := DefaultExportLimits()
	switch kind {
	case domain.FormatDocument:
		if l.DocumentMaxRows > 0 {
			return l.DocumentMaxRows
		}
		return def.DocumentMaxRows
	case domain.FormatClipboard, domain.FormatPrint:
		if l.PayloadMaxRows > 0 {
			return l.PayloadMaxRows
		}
		return def.PayloadMaxRows
	}
	if l.FileMaxRows > 0 {
		return l.FileMaxRows
	}
	return def.FileMaxRows
}
