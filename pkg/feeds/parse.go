package feeds

import (
	"encoding/csv"
	"io"
	"slices"
	"strings"

	"github.com/agentstation/enrollsync/pkg/errors"
)

// Row maps header name to cell value.
type Row map[string]string

// Table is a parsed feed file.
type Table struct {
	Name   string
	Header []string
	Rows   []Row
}

// HasColumn reports whether the header declares col.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Header, col)
}

// Parse reads comma-separated records with a header row. Blank lines are
// skipped; a row whose column count differs from the header is an error.
func Parse(r io.Reader, name string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.NewParseError("csv", name, "empty file: no header row found", nil)
	}
	if err != nil {
		return nil, parseError(name, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	table := &Table{Name: name, Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(name, err)
		}

		row := make(Row, len(header))
		for i, h := range header {
			row[h] = record[i]
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func parseError(name string, err error) error {
	pe := &errors.ParseError{
		Format:  "csv",
		File:    name,
		Message: err.Error(),
		Err:     err,
	}
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		pe.Line = csvErr.Line
		pe.Column = csvErr.Column
		pe.Message = csvErr.Err.Error()
	}
	return pe
}
