// Package report describes what a build or replay pass did to each column.
package report

import (
	"github.com/JonMunkholm/mlready/internal/infer"
	"github.com/JonMunkholm/mlready/internal/parse"
)

// DefaultMaxSamples bounds the failure samples kept per column.
const DefaultMaxSamples = 5

// Mode is the pass that produced a report.
type Mode string

const (
	ModeBuild  Mode = "build"
	ModeReplay Mode = "replay"
)

// Status is the per-column outcome.
type Status string

const (
	// StatusOK means the column was present and transformed.
	StatusOK Status = "ok"

	// StatusMissing means the recipe names the column but the table lacks it.
	StatusMissing Status = "missing"

	// StatusNotInRecipe means the table has the column but the recipe does
	// not; it passes through as text.
	StatusNotInRecipe Status = "not_in_recipe"
)

// Failure is one cell that did not parse.
type Failure struct {
	Row      int          `json:"row"`
	Original string       `json:"original"`
	Reason   parse.Reason `json:"reason"`
}

// Column is the report entry for one column.
type Column struct {
	Name           string            `json:"name"`
	Status         Status            `json:"status"`
	Kind           parse.Kind        `json:"kind"`
	Ambiguous      bool              `json:"ambiguous"`
	Score          float64           `json:"score"`
	Candidates     []infer.Candidate `json:"candidates,omitempty"`
	Total          int               `json:"total"`
	Converted      int               `json:"converted"`
	Missing        int               `json:"missing"`
	Failed         int               `json:"failed"`
	SampleFailures []Failure         `json:"sample_failures"`
}

// Report is the full account of one pass.
type Report struct {
	Mode     Mode     `json:"mode"`
	RecipeID string   `json:"recipe_id"`
	Rows     int      `json:"rows"`
	Columns  []Column `json:"columns"`
}

// Column returns the entry for name.
func (r *Report) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Failed returns the number of failed cells across all columns.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Columns {
		n += c.Failed
	}
	return n
}

// Ambiguous lists the columns that fell back to text without a confident
// winner.
func (r *Report) Ambiguous() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Ambiguous {
			out = append(out, c.Name)
		}
	}
	return out
}

// MissingColumns lists recipe columns absent from the replayed table.
func (r *Report) MissingColumns() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Status == StatusMissing {
			out = append(out, c.Name)
		}
	}
	return out
}
