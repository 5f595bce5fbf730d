package recordstore

import (
	"encoding/json"
	"maps"
)

// Field is one field value of a remote record. Value holds the JSON the
// store returned or will receive: a string for scalar fields, an array of
// TableRow for subtables.
type Field struct {
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Record maps field code to value.
type Record map[string]Field

// TableRow is one row of a subtable field.
type TableRow struct {
	ID    string `json:"id,omitempty"`
	Value Record `json:"value"`
}

// Text builds a scalar field.
func Text(v string) Field {
	raw, _ := json.Marshal(v)
	return Field{Value: raw}
}

// Table builds a subtable field. Rows without an id are added by the store.
func Table(rows []TableRow) Field {
	if rows == nil {
		rows = []TableRow{}
	}
	raw, _ := json.Marshal(rows)
	return Field{Value: raw}
}

// FromValues builds a record of scalar fields.
func FromValues(values map[string]string) Record {
	r := make(Record, len(values))
	for code, v := range values {
		r[code] = Text(v)
	}
	return r
}

// String returns the scalar value of a field. Missing fields and null read as
// "". Non-string JSON is returned as its literal text.
func (r Record) String(code string) string {
	f, ok := r[code]
	if !ok || len(f.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err == nil {
		return s
	}
	if string(f.Value) == "null" {
		return ""
	}
	return string(f.Value)
}

// Table returns the rows of a subtable field, or nil when the field is
// missing or not a subtable.
func (r Record) Table(code string) []TableRow {
	f, ok := r[code]
	if !ok || len(f.Value) == 0 {
		return nil
	}
	var rows []TableRow
	if err := json.Unmarshal(f.Value, &rows); err != nil {
		return nil
	}
	return rows
}

// Set stores a scalar value.
func (r Record) Set(code, v string) {
	r[code] = Text(v)
}

// Clone returns a copy that shares no map with r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Merge overwrites r's fields with those of other.
func (r Record) Merge(other Record) {
	maps.Copy(r, other)
}

// Update addresses one existing record.
type Update struct {
	ID     string `json:"id"`
	Record Record `json:"record"`
}
