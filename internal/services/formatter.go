package services

import (
	"fmt"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"
)

// DefaultDocumentMaxRows bounds document memory use.
const DefaultDocumentMaxRows = 5000

// Artifact is the result of one export.
type Artifact struct {
	Filename    string
	ContentType string
	// Body is set for file formats.
	Body []byte
	// Payload is set for clipboard and print formats.
	Payload   *Payload
	Rows      int
	Truncated bool
}

// PayloadColumn tells the client the fixed column order of a payload.
type PayloadColumn struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// Payload is the JSON body of copy/print exports.
type Payload struct {
	Columns   []PayloadColumn  `json:"columns"`
	Data      []map[string]any `json:"data"`
	Truncated bool             `json:"truncated,omitempty"`
}

// Formatter encodes rows. Serial numbers come from output position only;
// whatever SerialNumber the rows carried is ignored.
type Formatter struct {
	DocumentMaxRows int
	Now             func() time.Time
}

// Format encodes rows in the requested format using the resource schema.
func (f Formatter) Format(rows []domain.Row, kind domain.FormatKind, schema Schema) (Artifact, error) {
	records := domain.Records(rows)
	out := Artifact{
		Filename:    f.filename(schema, kind),
		ContentType: kind.ContentType(),
	}

	var err error
	switch kind {
	case domain.FormatCommaSeparated:
		out.Body, err = encodeCSV(records, schema)
	case domain.FormatSpreadsheet:
		out.Body, err = encodeXLSX(records, schema)
	case domain.FormatDocument:
		limit := f.DocumentMaxRows
		if limit <= 0 {
			limit = DefaultDocumentMaxRows
		}
		if len(records) > limit {
			records = records[:limit]
			out.Truncated = true
		}
		out.Body, err = encodePDF(records, schema, f.now())
	case domain.FormatClipboard, domain.FormatPrint:
		out.Payload = buildPayload(records, schema)
	default:
		return Artifact{}, domain.ValidationError{Field: "type", Msg: fmt.Sprintf("unsupported export format %q", kind)}
	}
	if err != nil {
		return Artifact{}, domain.InternalError{Msg: "export encoding failed", Err: err}
	}
	out.Rows = len(records)
	return out, nil
}

func (f Formatter) filename(schema Schema, kind domain.FormatKind) string {
	return fmt.Sprintf("%s_report_%s.%s", utils.SafeFilenamePart(schema.Resource), utils.FileStamp(f.now()), kind.Extension())
}

func (f Formatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func buildPayload(records []domain.Record, schema Schema) *Payload {
	cols := make([]PayloadColumn, 0, len(schema.Columns)+1)
	cols = append(cols, PayloadColumn{Key: SerialKey, Header: "#"})
	for _, c := range schema.Columns {
		cols = append(cols, PayloadColumn{Key: c.Key, Header: c.Header})
	}

	data := make([]map[string]any, len(records))
	for i, rec := range records {
		item := make(map[string]any, len(schema.Columns)+2)
		item[SerialKey] = i + 1
		item["id"] = rec.RecordID()
		for _, c := range schema.Columns {
			item[c.Key] = c.Value(rec)
		}
		data[i] = item
	}
	return &Payload{Columns: cols, Data: data}
}
