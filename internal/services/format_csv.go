package services

import (
	"bytes"
	"encoding/csv"

	"hive/internal/domain"
)

const utf8BOM = "\ufeff"

func encodeCSV(records []domain.Record, schema Schema) ([]byte, error) {
	var buf bytes.Buffer
	// Excel needs the BOM to detect UTF-8.
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(schema.Headers()); err != nil {
		return nil, err
	}
	for i, rec := range records {
		if err := w.Write(schema.Cells(i+1, rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
