// Package infer selects the semantic type of a column.
//
// Every parser in the priority list is fitted to and scored against a
// deterministic sample of the column's non-missing cells:
//
//	score = (successes / sampled) * mean confidence of successes
//	      = sum of success confidences / sampled
//
// The highest score wins; ties go to the earlier kind in the priority list.
// A winner must clear the score threshold, otherwise the column falls back
// to text and is flagged ambiguous. Ambiguity is never an error.
package infer

import (
	"fmt"

	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/table"
)

// scoreEpsilon absorbs floating point noise when comparing scores.
const scoreEpsilon = 1e-9

// Defaults for Options.
const (
	DefaultScoreThreshold = 0.6
	DefaultSampleSize     = 1000
)

// Options control inference.
type Options struct {
	Parse          parse.Config
	ScoreThreshold float64      `validate:"gte=0,lte=1"`
	SampleSize     int          `validate:"gt=0"`
	Priority       []parse.Kind `validate:"min=1,dive,required"`
}

// DefaultOptions returns the built-in inference settings.
func DefaultOptions() Options {
	priority := make([]parse.Kind, len(parse.DefaultPriority))
	copy(priority, parse.DefaultPriority)

	return Options{
		Parse:          parse.DefaultConfig(),
		ScoreThreshold: DefaultScoreThreshold,
		SampleSize:     DefaultSampleSize,
		Priority:       priority,
	}
}

// Candidate is the score one parser achieved on the sample.
type Candidate struct {
	Kind    parse.Kind `json:"kind"`
	Score   float64    `json:"score"`
	Matched int        `json:"matched"`
	Sampled int        `json:"sampled"`
}

// Decision is the outcome of inferring one column.
type Decision struct {
	Kind       parse.Kind
	Params     parse.Params
	Score      float64 // best typed score, even when falling back to text
	Ambiguous  bool
	Candidates []Candidate
}

// Inferrer runs inference with a fixed registry and options.
type Inferrer struct {
	opts     Options
	parsers  []parse.Parser
	fallback parse.Parser
}

// New returns an Inferrer. Every kind in the priority list and the text
// fallback must be registered.
func New(registry *parse.Registry, opts Options) (*Inferrer, error) {
	in := &Inferrer{opts: opts}

	for _, kind := range opts.Priority {
		p, ok := registry.Lookup(kind)
		if !ok {
			return nil, fmt.Errorf("infer: priority kind %q is not registered", kind)
		}
		in.parsers = append(in.parsers, p)
	}

	fallback, ok := registry.Lookup(parse.KindText)
	if !ok {
		return nil, fmt.Errorf("infer: text fallback is not registered")
	}
	in.fallback = fallback

	return in, nil
}

// Infer chooses a parser and its frozen parameters for cells.
func (in *Inferrer) Infer(cells []table.Cell) Decision {
	cfg := in.opts.Parse

	present := make([]table.Cell, 0, len(cells))
	for _, c := range cells {
		if !c.IsMissing(cfg.MissingTokens) {
			present = append(present, c)
		}
	}

	fallback := Decision{
		Kind:      in.fallback.Kind,
		Params:    parse.Params{MissingTokens: cloneStrings(cfg.MissingTokens)},
		Ambiguous: true,
	}

	sample := Sample(present, in.opts.SampleSize)
	if len(sample) == 0 || len(in.parsers) == 0 {
		return fallback
	}

	candidates := make([]Candidate, len(in.parsers))
	params := make([]parse.Params, len(in.parsers))
	for i, p := range in.parsers {
		candidates[i], params[i] = score(p, sample, cfg)
	}
	rejected := make([]bool, len(in.parsers))
	fallback.Candidates = candidates
	fallback.Score = candidates[bestCandidate(candidates, rejected)].Score

	for {
		best := bestCandidate(candidates, rejected)
		if best < 0 {
			return fallback
		}
		winner := candidates[best]
		if winner.Score <= 0 || winner.Score < in.opts.ScoreThreshold-scoreEpsilon {
			return fallback
		}

		chosen := in.parsers[best]
		chosenParams := params[best]
		if chosen.Widen != nil {
			widened, keep := chosen.Widen(present, chosenParams, cfg)
			if !keep {
				rejected[best] = true
				continue
			}
			chosenParams = widened
		}

		return Decision{
			Kind:       chosen.Kind,
			Params:     chosenParams,
			Score:      winner.Score,
			Candidates: candidates,
		}
	}
}

// bestCandidate returns the highest scoring candidate not yet rejected, or
// -1. Scores within scoreEpsilon keep the earlier, higher priority candidate.
func bestCandidate(candidates []Candidate, rejected []bool) int {
	best := -1
	for i, cand := range candidates {
		if rejected[i] {
			continue
		}
		if best < 0 || cand.Score > candidates[best].Score+scoreEpsilon {
			best = i
		}
	}
	return best
}

// score fits p to sample and measures how well it parses.
func score(p parse.Parser, sample []table.Cell, cfg parse.Config) (Candidate, parse.Params) {
	cand := Candidate{Kind: p.Kind, Sampled: len(sample)}

	params, applicable := parse.FitParams(p, sample, cfg)
	params.MissingTokens = cloneStrings(cfg.MissingTokens)
	if !applicable {
		return cand, params
	}

	parseCell := parse.Bind(p, params)
	var sum float64
	for _, c := range sample {
		r := parseCell(c)
		if !r.OK() {
			continue
		}
		cand.Matched++
		sum += r.Confidence
	}

	cand.Score = sum / float64(len(sample))
	return cand, params
}

// Sample returns up to size cells spread evenly across cells. Columns no
// larger than size are returned whole. The choice is deterministic.
func Sample(cells []table.Cell, size int) []table.Cell {
	if size <= 0 || len(cells) <= size {
		return cells
	}

	out := make([]table.Cell, size)
	for i := 0; i < size; i++ {
		out[i] = cells[i*len(cells)/size]
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
