package report

import (
	"github.com/JonMunkholm/mlready/internal/infer"
	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/table"
)

// Collector tallies the results of one column as its cells are converted.
// It is not safe for concurrent use; each column gets its own.
type Collector struct {
	col        Column
	maxSamples int
}

// NewCollector starts an entry for a present column. maxSamples <= 0 uses
// DefaultMaxSamples.
func NewCollector(name string, kind parse.Kind, maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Collector{
		col: Column{
			Name:           name,
			Status:         StatusOK,
			Kind:           kind,
			SampleFailures: []Failure{},
		},
		maxSamples: maxSamples,
	}
}

// Record counts the result of converting the cell at row.
func (c *Collector) Record(row int, original string, r parse.Result) {
	c.col.Total++

	switch {
	case !r.OK():
		c.col.Failed++
		if len(c.col.SampleFailures) < c.maxSamples {
			c.col.SampleFailures = append(c.col.SampleFailures, Failure{
				Row:      row,
				Original: original,
				Reason:   r.Reason,
			})
		}
	case r.Value.Kind == table.ValueMissing:
		c.col.Missing++
	default:
		c.col.Converted++
	}
}

// SetInference records the inference outcome on a build pass.
func (c *Collector) SetInference(score float64, ambiguous bool, candidates []infer.Candidate) {
	c.col.Score = score
	c.col.Ambiguous = ambiguous
	c.col.Candidates = candidates
}

// Column returns the finished entry.
func (c *Collector) Column() Column {
	return c.col
}

// MissingColumn is the entry for a recipe column absent from the table. It
// has no cells to count.
func MissingColumn(name string, kind parse.Kind) Column {
	return Column{
		Name:           name,
		Status:         StatusMissing,
		Kind:           kind,
		SampleFailures: []Failure{},
	}
}
