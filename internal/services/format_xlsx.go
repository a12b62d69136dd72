package services

import (
	"hive/internal/domain"

	"github.com/xuri/excelize/v2"
)

func encodeXLSX(records []domain.Record, schema Schema) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := schema.Headers()

	headerRow := make([]any, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return nil, err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(schema.Columns)+1)
		values = append(values, i+1)
		for _, c := range schema.Columns {
			values = append(values, c.Value(rec))
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#F4F4F4"}},
	})
	if err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return nil, err
	}

	if err := f.SetColWidth(sheet, "A", "A", 6); err != nil {
		return nil, err
	}
	for i, c := range schema.Columns {
		col, err := excelize.ColumnNumberToName(i + 2)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, 10*c.Width); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
