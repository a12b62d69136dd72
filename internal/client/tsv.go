package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"hive/internal/utils"
)

// internalColumn reports keys that never leave the table through copy/print.
func internalColumn(key string) bool {
	k := strings.ToLower(key)
	switch {
	case k == "id", k == "uuid", k == "password", k == "remember_token":
		return true
	case strings.HasPrefix(k, "avatar"):
		return true
	case strings.HasSuffix(k, "_id"):
		return true
	}
	return false
}

// visibleColumns keeps the payload's column order and drops internal keys.
func visibleColumns(cols []PayloadColumn) []PayloadColumn {
	out := make([]PayloadColumn, 0, len(cols))
	for _, c := range cols {
		if !internalColumn(c.Key) {
			out = append(out, c)
		}
	}
	return out
}

// ToTSV renders a payload as tab separated text with a header line. Cells
// are flattened to one line.
func ToTSV(p Payload) string {
	cols := visibleColumns(p.Columns)
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(utils.SingleLine(c.Header))
	}
	for _, row := range p.Data {
		b.WriteByte('\n')
		for i, c := range cols {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(utils.SingleLine(cellText(row[c.Key])))
		}
	}
	return b.String()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = cellText(e)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
