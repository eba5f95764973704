package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is a rectangular table of string cells with named columns.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Has reports whether the frame has a column named name.
func (f *Frame) Has(name string) bool { return f.index(name) >= 0 }

func (f *Frame) index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the cells of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	idx := f.index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrMissingColumn, name, strings.Join(f.Columns, ", "))
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Floats returns the named column parsed as float64.
func (f *Frame) Floats(name string) ([]float64, error) {
	cells, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q row %d value %q", ErrNonNumeric, name, i, c)
		}
		out[i] = v
	}
	return out, nil
}
