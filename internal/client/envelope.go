package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"hive/internal/domain"
)

// Row is one table row as the API serialized it.
type Row map[string]any

// ID returns the record id, 0 when absent.
func (r Row) ID() int64 { return toInt64(r["id"]) }

// Serial returns the 1-based position the server assigned.
func (r Row) Serial() int { return int(toInt64(r["serial_number"])) }

// Meta is the meta block of a list response.
type Meta struct {
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	LastPage int               `json:"lastPage"`
	Context  string            `json:"context"`
	Guard    string            `json:"guard"`
	Stats    *domain.UserStats `json:"stats,omitempty"`
}

// ListResult is a decoded list response.
type ListResult struct {
	Meta Meta
	Rows []Row
}

// DecodeList reads the {meta,data} envelope. Older servers put the rows
// under the resource name instead of data; both are accepted.
func DecodeList(body []byte, resource string) (ListResult, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return ListResult{}, fmt.Errorf("decode list: %w", err)
	}

	var out ListResult
	if m, ok := raw["meta"]; ok {
		if err := json.Unmarshal(m, &out.Meta); err != nil {
			return ListResult{}, fmt.Errorf("decode list meta: %w", err)
		}
	}

	data, ok := raw["data"]
	if !ok {
		data, ok = raw[resource]
	}
	if !ok {
		return ListResult{}, fmt.Errorf("list response has neither data nor %s", resource)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return ListResult{}, err
	}
	out.Rows = rows

	if out.Meta.Page < 1 {
		out.Meta.Page = 1
	}
	if _, hasTotal := raw["meta"]; !hasTotal && out.Meta.Total == 0 {
		out.Meta.Total = len(rows)
	}
	if out.Meta.LastPage < 1 {
		out.Meta.LastPage = 1
		if out.Meta.PageSize > 0 && out.Meta.Total > 0 {
			out.Meta.LastPage = (out.Meta.Total + out.Meta.PageSize - 1) / out.Meta.PageSize
		}
	}
	return out, nil
}

func decodeRows(data json.RawMessage) ([]Row, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return []Row{}, nil
	}
	var rows []Row
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode list rows: %w", err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int64(f)
		}
		return i
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
