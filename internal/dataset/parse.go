package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// splitTable is the pandas "split" orientation.
type splitTable struct {
	Columns []string `json:"columns"`
	Index   []any    `json:"index"`
	Data    [][]any  `json:"data"`
}

// ParseSplit parses a table in split orientation:
// {"columns":[...],"index":[...],"data":[[...],...]}.
func ParseSplit(text string) (*Frame, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var t splitTable
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: split json: %v", ErrParse, err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: split json has no columns", ErrParse)
	}

	f := &Frame{Columns: t.Columns, Rows: make([][]string, len(t.Data))}
	for i, row := range t.Data {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrParse, i, len(row), len(t.Columns))
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellString(v)
		}
		f.Rows[i] = cells
	}
	return f, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ParseCSV parses CSV text with a header row.
func ParseCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv is empty", ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	f := &Frame{Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrParse, err)
		}
		f.Rows = append(f.Rows, rec)
	}
	return f, nil
}
