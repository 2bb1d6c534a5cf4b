// Package dataset holds the in-memory property table the pipeline works on.
//
// Every column is numeric (float64) and a missing cell is NaN. Column names
// are lower-cased on the way in so lookups are case-insensitive.
package dataset

import (
	"slices"
	"strings"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Table is a column-major numeric table.
type Table struct {
	columns []string
	index   map[string]int
	data    [][]float64
	nRows   int
}

// NewTable builds a table from column names and column-major data. Names are
// normalised with NormalizeName; a repeated name keeps the first column.
func NewTable(columns []string, data [][]float64) (*Table, error) {
	if len(columns) != len(data) {
		return nil, errors.NewDimensionError("dataset.NewTable", len(columns), len(data), 1)
	}
	t := &Table{index: make(map[string]int, len(columns))}
	for j, name := range columns {
		if j > 0 && len(data[j]) != len(data[0]) {
			return nil, errors.NewDimensionError("dataset.NewTable", len(data[0]), len(data[j]), 0)
		}
		if len(data) > 0 {
			t.nRows = len(data[0])
		}
		key := NormalizeName(name)
		if _, dup := t.index[key]; dup {
			continue
		}
		t.index[key] = len(t.columns)
		t.columns = append(t.columns, key)
		t.data = append(t.data, data[j])
	}
	return t, nil
}

// NormalizeName lower-cases and trims a column name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// NumRows returns the number of records.
func (t *Table) NumRows() int {
	return t.nRows
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Has reports whether the column exists (case-insensitive).
func (t *Table) Has(name string) bool {
	_, ok := t.index[NormalizeName(name)]
	return ok
}

// Column returns the values of a column. The slice is shared with the table.
func (t *Table) Column(name string) ([]float64, bool) {
	j, ok := t.index[NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return t.data[j], true
}

// SetColumn adds a column or replaces an existing one.
func (t *Table) SetColumn(name string, values []float64) error {
	if len(t.columns) > 0 && len(values) != t.nRows {
		return errors.NewDimensionError("dataset.SetColumn", t.nRows, len(values), 0)
	}
	if len(t.columns) == 0 {
		t.nRows = len(values)
	}
	key := NormalizeName(name)
	if j, ok := t.index[key]; ok {
		t.data[j] = values
		return nil
	}
	t.index[key] = len(t.columns)
	t.columns = append(t.columns, key)
	t.data = append(t.data, values)
	return nil
}

// Take returns a new table holding the given rows in the given order.
func (t *Table) Take(rows []int) *Table {
	out := &Table{
		columns: slices.Clone(t.columns),
		index:   make(map[string]int, len(t.columns)),
		data:    make([][]float64, len(t.columns)),
		nRows:   len(rows),
	}
	for j, name := range t.columns {
		out.index[name] = j
		col := make([]float64, len(rows))
		for k, i := range rows {
			col[k] = t.data[j][i]
		}
		out.data[j] = col
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true,
// together with the kept row indices of t.
func (t *Table) Filter(keep func(row int) bool) (*Table, []int) {
	rows := make([]int, 0, t.nRows)
	for i := 0; i < t.nRows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows), rows
}

// Matrix returns the named columns as a row-major n×len(columns) matrix.
func (t *Table) Matrix(columns []string) (*mat.Dense, error) {
	if len(columns) == 0 {
		return nil, errors.NewValueError("dataset.Matrix", "no columns requested")
	}
	if t.nRows == 0 {
		return nil, errors.NewModelError("dataset.Matrix", "empty table", errors.ErrEmptyData)
	}
	cols := make([][]float64, len(columns))
	for k, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, errors.NewMissingColumnError(NormalizeName(name), name)
		}
		cols[k] = col
	}

	m := mat.NewDense(t.nRows, len(columns), nil)
	for i := 0; i < t.nRows; i++ {
		for k, col := range cols {
			m.Set(i, k, col[i])
		}
	}
	return m, nil
}
