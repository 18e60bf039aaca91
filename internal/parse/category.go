package parse

import (
	"github.com/JonMunkholm/mlready/internal/table"
)

// categoryConfidence sits below explicit-token matches: set membership is
// only as good as the sample it was learned from.
const categoryConfidence = 0.9

// minCategorySamples is the smallest column that can form a category.
const minCategorySamples = 2

// CategoryParser accepts values from a finite set observed in the column.
// Values are kept as written; case is preserved.
func CategoryParser() Parser {
	return Parser{
		Kind:  KindCategory,
		Parse: parseCategory,
		Fit:   fitCategory,
		Widen: widenCategory,
		Bind:  bindCategory,
	}
}

func fitCategory(samples []table.Cell, cfg Config) (Params, bool) {
	if len(samples) < minCategorySamples {
		return Params{}, false
	}
	values := distinctValues(samples, nil)
	if !withinCardinality(len(values), len(samples), cfg) {
		return Params{}, false
	}
	return Params{Categories: values}, true
}

// widenCategory adds values that the sample missed, in first-seen order. The
// cardinality ratio is checked again over the whole column, since a stride
// sample can land on the few repeated values of a mostly unique column.
func widenCategory(cells []table.Cell, p Params, cfg Config) (Params, bool) {
	p.Categories = distinctValues(cells, p.Categories)
	if !withinCardinality(len(p.Categories), len(cells), cfg) {
		return p, false
	}
	return p, true
}

func withinCardinality(distinct, total int, cfg Config) bool {
	if total == 0 {
		return false
	}
	return float64(distinct)/float64(total) <= cfg.CategoryCardinalityRatio
}

func distinctValues(cells []table.Cell, seed []string) []string {
	values := cloneStrings(seed)
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	for _, c := range cells {
		s := table.CleanCell(c.String())
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	return values
}

func parseCategory(c table.Cell, p Params) Result {
	return bindCategory(p)(c)
}

// bindCategory indexes the category set once so each cell is a map lookup.
func bindCategory(p Params) func(c table.Cell) Result {
	set := make(map[string]struct{}, len(p.Categories))
	for _, v := range p.Categories {
		set[v] = struct{}{}
	}
	return func(c table.Cell) Result {
		s := table.CleanCell(c.String())
		if _, found := set[s]; found {
			return ok(table.CategoryValue(s), categoryConfidence)
		}
		return fail(ReasonNotInCategorySet)
	}
}
