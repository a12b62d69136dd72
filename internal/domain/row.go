package domain

import "encoding/json"

// Resource names served by the list and export endpoints.
const (
	ResourceUsers       = "users"
	ResourceRoles       = "roles"
	ResourcePermissions = "permissions"
)

// Row is a record placed on a page. SerialNumber is its 1-based position in
// the page or export, never the record id.
type Row struct {
	SerialNumber int
	Record       Record
}

// ID returns the underlying record id.
func (r Row) ID() int64 {
	if r.Record == nil {
		return 0
	}
	return r.Record.RecordID()
}

func (r Row) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if r.Record != nil {
		for k, v := range r.Record.Fields() {
			fields[k] = v
		}
	}
	fields["serial_number"] = r.SerialNumber
	return json.Marshal(fields)
}

// Page is one resolved page plus the total number of matching rows.
type Page struct {
	Rows  []Row
	Total int
}

// NumberRows wraps records as rows numbered 1..len(records) by position.
func NumberRows(records []Record) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row{SerialNumber: i + 1, Record: rec}
	}
	return rows
}

// Records strips rows back to their records, in order.
func Records(rows []Row) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out
}
