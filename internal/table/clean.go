package table

import (
	"encoding/json"
	"fmt"
)

// CleanColumn is a named sequence of canonical values.
type CleanColumn struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// CleanTable is the normalized output. It has the same row count and column
// order as the RawTable it was derived from.
type CleanTable struct {
	columns []CleanColumn
	index   map[string]int
	rows    int
}

// NewClean assembles a CleanTable. All columns must hold rows values.
func NewClean(rows int, columns []CleanColumn) (*CleanTable, error) {
	ct := &CleanTable{
		columns: columns,
		index:   make(map[string]int, len(columns)),
		rows:    rows,
	}
	for i, col := range columns {
		if _, exists := ct.index[col.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col.Name)
		}
		if len(col.Values) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d",
				ErrShape, col.Name, len(col.Values), rows)
		}
		ct.index[col.Name] = i
	}
	return ct, nil
}

// Names returns the column names in order.
func (ct *CleanTable) Names() []string {
	names := make([]string, len(ct.columns))
	for i, c := range ct.columns {
		names[i] = c.Name
	}
	return names
}

// Values returns the values of the named column. The slice must not be modified.
func (ct *CleanTable) Values(name string) ([]Value, bool) {
	i, ok := ct.index[name]
	if !ok {
		return nil, false
	}
	return ct.columns[i].Values, true
}

// ColumnAt returns the i-th column.
func (ct *CleanTable) ColumnAt(i int) CleanColumn { return ct.columns[i] }

// NumColumns returns the number of columns.
func (ct *CleanTable) NumColumns() int { return len(ct.columns) }

// Rows returns the row count.
func (ct *CleanTable) Rows() int { return ct.rows }

// Row returns the values of row i across all columns, in column order.
func (ct *CleanTable) Row(i int) []Value {
	row := make([]Value, len(ct.columns))
	for j, c := range ct.columns {
		row[j] = c.Values[i]
	}
	return row
}

// MarshalJSON encodes the table column-wise.
func (ct *CleanTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Rows    int           `json:"rows"`
		Columns []CleanColumn `json:"columns"`
	}{ct.rows, ct.columns})
}
