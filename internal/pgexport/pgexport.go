// Package pgexport loads clean tables into PostgreSQL with the COPY protocol.
//
// Column types follow the recipe step kind:
//
//	boolean                        -> boolean
//	currency, percentage, numeric  -> double precision
//	datetime                       -> timestamptz
//	category, text, anything else  -> text
//
// Missing and Unresolved values are written as NULL, as is any value whose
// kind does not fit the column type (a keep_text fallback in a numeric
// column, for instance).
package pgexport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/table"
)

// ErrNoColumns is returned when there is nothing to load.
var ErrNoColumns = errors.New("table has no columns")

// DB is the subset of pgx used for loading. Satisfied by *pgxpool.Pool,
// *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// ColumnType is a PostgreSQL column type.
type ColumnType string

const (
	TypeDouble      ColumnType = "double precision"
	TypeBoolean     ColumnType = "boolean"
	TypeTimestamptz ColumnType = "timestamptz"
	TypeText        ColumnType = "text"
)

// TypeFor maps a parser kind to its column type.
func TypeFor(kind parse.Kind) ColumnType {
	switch kind {
	case parse.KindBoolean:
		return TypeBoolean
	case parse.KindCurrency, parse.KindPercentage, parse.KindNumeric:
		return TypeDouble
	case parse.KindDateTime:
		return TypeTimestamptz
	default:
		return TypeText
	}
}

// Columns returns the column types of clean in order. Columns without a
// recipe step are text.
func Columns(clean *table.CleanTable, rec *recipe.Recipe) []ColumnType {
	types := make([]ColumnType, clean.NumColumns())
	for i := range types {
		types[i] = TypeText
		if rec == nil {
			continue
		}
		if step, ok := rec.Step(clean.ColumnAt(i).Name); ok {
			types[i] = TypeFor(step.Kind)
		}
	}
	return types
}

// CreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement for clean.
func CreateTableSQL(name pgx.Identifier, clean *table.CleanTable, rec *recipe.Recipe) string {
	types := Columns(clean, rec)

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(name.Sanitize())
	b.WriteString(" (\n")
	for i, t := range types {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "  %s %s", pgx.Identifier{clean.ColumnAt(i).Name}.Sanitize(), t)
	}
	b.WriteString("\n)")
	return b.String()
}

// copySource streams clean row by row as pgtype values.
type copySource struct {
	clean *table.CleanTable
	types []ColumnType
	row   int
}

// CopySource returns a pgx.CopyFromSource over clean.
func CopySource(clean *table.CleanTable, rec *recipe.Recipe) pgx.CopyFromSource {
	return &copySource{clean: clean, types: Columns(clean, rec), row: -1}
}

func (s *copySource) Next() bool {
	s.row++
	return s.row < s.clean.Rows()
}

func (s *copySource) Values() ([]any, error) {
	row := s.clean.Row(s.row)
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = pgValue(v, s.types[i])
	}
	return out, nil
}

func (s *copySource) Err() error { return nil }

// pgValue converts v for a column of type t.
func pgValue(v table.Value, t ColumnType) any {
	switch t {
	case TypeDouble:
		return pgtype.Float8{Float64: v.Num, Valid: v.Kind == table.ValueNumber}
	case TypeBoolean:
		return pgtype.Bool{Bool: v.Bool, Valid: v.Kind == table.ValueBoolean}
	case TypeTimestamptz:
		return pgtype.Timestamptz{Time: v.Time, Valid: v.Kind == table.ValueDateTime}
	default:
		switch v.Kind {
		case table.ValueMissing, table.ValueUnresolved:
			return pgtype.Text{}
		default:
			return pgtype.Text{String: v.String(), Valid: true}
		}
	}
}

// Load creates the target table if needed and copies clean into it. It
// returns the number of rows copied.
func Load(ctx context.Context, db DB, name string, clean *table.CleanTable, rec *recipe.Recipe) (int64, error) {
	if clean.NumColumns() == 0 {
		return 0, ErrNoColumns
	}

	ident := identifier(name)
	if _, err := db.Exec(ctx, CreateTableSQL(ident, clean, rec)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", ident.Sanitize(), err)
	}

	n, err := db.CopyFrom(ctx, ident, clean.Names(), CopySource(clean, rec))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", ident.Sanitize(), err)
	}
	return n, nil
}

// identifier splits a schema-qualified name.
func identifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}
