// Package table holds the tabular containers the normalizer reads from and
// writes to.
//
// A [RawTable] is an ordered set of uniquely named columns of raw [Cell]
// values supplied by the caller. A [CleanTable] has the same shape but every
// cell is a canonical [Value]. Neither type is mutated after construction.
package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrShape is returned when columns do not share a single row count.
	ErrShape = errors.New("table shape mismatch")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrEmptyColumnName is returned for a column named "".
	ErrEmptyColumnName = errors.New("empty column name")
)

// CellKind distinguishes the raw representations a cell can arrive in.
type CellKind int

const (
	CellText CellKind = iota
	CellNumber
	CellMissing
)

// Cell is one raw value as supplied by the caller.
type Cell struct {
	Kind CellKind
	Text string
	Num  float64
}

// Text returns a textual cell.
func Text(s string) Cell { return Cell{Kind: CellText, Text: s} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{Kind: CellNumber, Num: f} }

// Missing returns an explicit missing marker.
func Missing() Cell { return Cell{Kind: CellMissing} }

// Texts converts a list of strings into text cells.
func Texts(values ...string) []Cell {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = Text(v)
	}
	return cells
}

// String returns the raw textual form of the cell. Numbers use the shortest
// representation that round-trips; missing cells render as "".
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellMissing:
		return ""
	default:
		return c.Text
	}
}

// IsMissing reports whether the cell is a missing marker, a NaN number, blank
// text, or text matching one of tokens (case-insensitive, after cleanup).
func (c Cell) IsMissing(tokens []string) bool {
	switch c.Kind {
	case CellMissing:
		return true
	case CellNumber:
		return math.IsNaN(c.Num)
	}
	s := CleanCell(c.Text)
	if s == "" {
		return true
	}
	for _, tok := range tokens {
		if strings.EqualFold(s, tok) {
			return true
		}
	}
	return false
}

// CleanCell removes common spreadsheet artifacts from a raw text value:
//   - a UTF-8 byte order mark
//   - surrounding whitespace
//   - the Excel formula wrapper (="...")
//   - one matching pair of surrounding quotes, so O' and '90s survive
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	if n := len(s); n >= 2 && (s[0] == '"' || s[0] == '\'') && s[n-1] == s[0] {
		s = s[1 : n-1]
	}
	return strings.TrimSpace(s)
}

// Column is a named, ordered sequence of raw cells.
type Column struct {
	Name  string
	Cells []Cell
}

// RawTable is the caller-supplied input. It is read-only once built.
type RawTable struct {
	columns []Column
	index   map[string]int
	rows    int
}

// New builds a RawTable from columns, enforcing non-empty unique names and a
// uniform row count. Column cell slices are copied.
func New(columns ...Column) (*RawTable, error) {
	t := &RawTable{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column %d", ErrEmptyColumnName, i)
		}
		if _, exists := t.index[col.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col.Name)
		}
		if i == 0 {
			t.rows = len(col.Cells)
		} else if len(col.Cells) != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d",
				ErrShape, col.Name, len(col.Cells), t.rows)
		}

		cells := make([]Cell, len(col.Cells))
		copy(cells, col.Cells)
		t.columns[i] = Column{Name: col.Name, Cells: cells}
		t.index[col.Name] = i
	}

	return t, nil
}

// MustNew is New for fixtures and demos; it panics on error.
func MustNew(columns ...Column) *RawTable {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the column names in order.
func (t *RawTable) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Cells returns the cells of the named column. The slice must not be modified.
func (t *RawTable) Cells(name string) ([]Cell, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i].Cells, true
}

// ColumnAt returns the i-th column. The cell slice must not be modified.
func (t *RawTable) ColumnAt(i int) Column { return t.columns[i] }

// NumColumns returns the number of columns.
func (t *RawTable) NumColumns() int { return len(t.columns) }

// Rows returns the row count shared by every column.
func (t *RawTable) Rows() int { return t.rows }
