package client

import (
	"bytes"
	"html/template"
	"time"

	"hive/internal/utils"
)

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; font-size: 12px; margin: 24px; }
h1 { font-size: 16px; margin: 0 0 4px; }
p.meta { color: #555; margin: 0 0 12px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 6px; text-align: left; }
th { background: #f2f2f2; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Printed {{.Printed}}{{if .Truncated}} (truncated){{end}}</p>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
<script>window.addEventListener("load", function () { window.print(); });</script>
</body>
</html>
`))

// RenderPrint renders p as a standalone HTML document that opens the print
// dialog once loaded.
func RenderPrint(title string, p Payload, now time.Time) ([]byte, error) {
	cols := visibleColumns(p.Columns)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
	}
	rows := make([][]string, len(p.Data))
	for i, r := range p.Data {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = cellText(r[c.Key])
		}
		rows[i] = cells
	}

	var buf bytes.Buffer
	err := printTemplate.Execute(&buf, struct {
		Title     string
		Printed   string
		Truncated bool
		Headers   []string
		Rows      [][]string
	}{
		Title:     title,
		Printed:   utils.FormatDateMinute(now),
		Truncated: p.Truncated,
		Headers:   headers,
		Rows:      rows,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
