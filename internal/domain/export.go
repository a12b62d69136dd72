package domain

import "strings"

// FormatKind is the output encoding of an export.
type FormatKind string

const (
	FormatSpreadsheet    FormatKind = "spreadsheet"
	FormatCommaSeparated FormatKind = "commaSeparated"
	FormatDocument       FormatKind = "document"
	FormatClipboard      FormatKind = "clipboardPayload"
	FormatPrint          FormatKind = "printPayload"
)

// IsFile reports whether the format produces a downloadable file rather
// than a JSON row payload.
func (f FormatKind) IsFile() bool {
	switch f {
	case FormatSpreadsheet, FormatCommaSeparated, FormatDocument:
		return true
	}
	return false
}

// Extension is the file extension for file formats.
func (f FormatKind) Extension() string {
	switch f {
	case FormatSpreadsheet:
		return "xlsx"
	case FormatCommaSeparated:
		return "csv"
	case FormatDocument:
		return "pdf"
	}
	return "json"
}

// ContentType is the response media type.
func (f FormatKind) ContentType() string {
	switch f {
	case FormatSpreadsheet:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCommaSeparated:
		return "text/csv; charset=utf-8"
	case FormatDocument:
		return "application/pdf"
	}
	return "application/json; charset=utf-8"
}

// WireType is the value of the export endpoint's type parameter.
func (f FormatKind) WireType() string {
	switch f {
	case FormatSpreadsheet:
		return "xlsx"
	case FormatCommaSeparated:
		return "csv"
	case FormatDocument:
		return "pdf"
	case FormatClipboard:
		return "copy"
	case FormatPrint:
		return "print"
	}
	return ""
}

// ParseExportType maps the export type parameter onto a format.
func ParseExportType(typ string) (FormatKind, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "xlsx", "excel":
		return FormatSpreadsheet, nil
	case "csv":
		return FormatCommaSeparated, nil
	case "pdf":
		return FormatDocument, nil
	case "copy":
		return FormatClipboard, nil
	case "print":
		return FormatPrint, nil
	}
	return "", ValidationError{Field: "type", Msg: "invalid export type, expected csv, excel, xlsx, pdf, print or copy"}
}

// ExportScope selects between the filtered result and an explicit id list.
type ExportScope string

const (
	ScopeFiltered    ExportScope = "filtered"
	ScopeExplicitIDs ExportScope = "explicitIds"
)

// ExportJob lives for one request and is never persisted.
type ExportJob struct {
	Resource string
	Format   FormatKind
	Scope    ExportScope
	Query    Query
}

// NewExportJob derives the scope from the query.
func NewExportJob(resource string, format FormatKind, q Query) ExportJob {
	scope := ScopeFiltered
	if q.HasExplicitIDs() {
		scope = ScopeExplicitIDs
	}
	return ExportJob{Resource: resource, Format: format, Scope: scope, Query: q}
}
