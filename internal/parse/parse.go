// Package parse provides the value parsers that turn raw cells into canonical
// values.
//
// Each parser is a pure function of a cell and a frozen [Params] value. A
// parser may also know how to derive its Params from a sample of cells (Fit)
// and how to extend them over a full column (Widen). Parsers are collected in
// a [Registry] keyed by [Kind]; nothing in this package holds global state.
package parse

import (
	"github.com/JonMunkholm/mlready/internal/table"
)

// Kind names a semantic type and the parser that produces it.
type Kind string

const (
	KindBoolean    Kind = "boolean"
	KindCurrency   Kind = "currency"
	KindPercentage Kind = "percentage"
	KindNumeric    Kind = "numeric"
	KindDateTime   Kind = "datetime"
	KindCategory   Kind = "category"
	KindText       Kind = "text"
)

// DefaultPriority is the tie-break order used by the inferrer. Earlier kinds
// win ties.
var DefaultPriority = []Kind{
	KindBoolean,
	KindCurrency,
	KindPercentage,
	KindNumeric,
	KindDateTime,
	KindCategory,
	KindText,
}

// Reason explains why a cell failed a parser.
type Reason string

const (
	ReasonUnrecognizedToken Reason = "unrecognized_token"
	ReasonNotNumeric        Reason = "not_numeric"
	ReasonNotPercentage     Reason = "not_percentage"
	ReasonNoDatePattern     Reason = "no_date_pattern"
	ReasonNotInCategorySet  Reason = "not_in_category_set"
)

// Result is the outcome of running one parser on one cell. A zero Reason
// means success.
type Result struct {
	Value      table.Value
	Confidence float64
	Reason     Reason
}

// OK reports whether the parse succeeded.
func (r Result) OK() bool { return r.Reason == "" }

func ok(v table.Value, confidence float64) Result {
	return Result{Value: v, Confidence: confidence}
}

func fail(reason Reason) Result {
	return Result{Reason: reason}
}

// Params are the column-level parameters a parser runs with. They are frozen
// into a recipe step, so every field must serialize.
type Params struct {
	TrueTokens    []string `json:"true_tokens,omitempty" yaml:"true_tokens,omitempty"`
	FalseTokens   []string `json:"false_tokens,omitempty" yaml:"false_tokens,omitempty"`
	Decimal       string   `json:"decimal,omitempty" yaml:"decimal,omitempty"`
	Thousands     string   `json:"thousands,omitempty" yaml:"thousands,omitempty"`
	DatePattern   string   `json:"date_pattern,omitempty" yaml:"date_pattern,omitempty"`
	Categories    []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	MissingTokens []string `json:"missing_tokens,omitempty" yaml:"missing_tokens,omitempty"`
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	p.TrueTokens = cloneStrings(p.TrueTokens)
	p.FalseTokens = cloneStrings(p.FalseTokens)
	p.Categories = cloneStrings(p.Categories)
	p.MissingTokens = cloneStrings(p.MissingTokens)
	return p
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Config carries the defaults parsers fit against. It is passed explicitly so
// concurrent passes with different settings never interfere.
type Config struct {
	TrueTokens               []string `validate:"dive,required"`
	FalseTokens              []string `validate:"dive,required"`
	DatePatterns             []string `validate:"dive,required"`
	CategoryCardinalityRatio float64  `validate:"gte=0,lte=1"`
	MissingTokens            []string
}

// DefaultConfig returns a fresh Config with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		TrueTokens:               []string{"true", "yes", "y", "t", "1"},
		FalseTokens:              []string{"false", "no", "n", "f", "0"},
		DatePatterns:             cloneStrings(DefaultDatePatterns),
		CategoryCardinalityRatio: 0.5,
		MissingTokens:            []string{"na", "n/a", "null", "nan"},
	}
}

// ParseFunc parses a single non-missing cell.
type ParseFunc func(c table.Cell, p Params) Result

// FitFunc derives Params from sampled non-missing cells. Returning false means
// the parser does not apply to the column at all.
type FitFunc func(samples []table.Cell, cfg Config) (Params, bool)

// WidenFunc extends fitted Params over every non-missing cell of the column
// once the parser has been chosen. Returning false means the full column
// breaks a rule the sample satisfied, and the parser must not be chosen.
type WidenFunc func(cells []table.Cell, p Params, cfg Config) (Params, bool)

// BindFunc returns a ParseFunc specialised to p, for parsers that index their
// params before a column-wide run.
type BindFunc func(p Params) func(c table.Cell) Result

// Parser is one registered semantic type.
type Parser struct {
	Kind  Kind
	Parse ParseFunc
	Fit   FitFunc   // optional
	Widen WidenFunc // optional
	Bind  BindFunc  // optional
}

// Apply runs p on c with params. Missing cells short-circuit to
// Ok(Missing, 1.0) for every parser.
func Apply(p Parser, c table.Cell, params Params) Result {
	if c.IsMissing(params.MissingTokens) {
		return ok(table.MissingValue(), 1.0)
	}
	return p.Parse(c, params)
}

// Bind returns a per-cell function equivalent to calling Apply with params.
// Use it when the same params are applied to many cells.
func Bind(p Parser, params Params) func(c table.Cell) Result {
	parseCell := func(c table.Cell) Result { return p.Parse(c, params) }
	if p.Bind != nil {
		parseCell = p.Bind(params)
	}
	return func(c table.Cell) Result {
		if c.IsMissing(params.MissingTokens) {
			return ok(table.MissingValue(), 1.0)
		}
		return parseCell(c)
	}
}

// FitParams runs the parser's Fit, or returns an empty Params when the parser
// has none.
func FitParams(p Parser, samples []table.Cell, cfg Config) (Params, bool) {
	if p.Fit == nil {
		return Params{}, true
	}
	return p.Fit(samples, cfg)
}
