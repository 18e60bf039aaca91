// Package recipe holds the replayable record of normalization decisions.
//
// A [Recipe] is an ordered list of [Step] values, one per column, plus a
// format version. Recipes are immutable: accessors hand out copies, and a
// recipe can be persisted as JSON or YAML and reloaded exactly.
package recipe

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/mlready/internal/parse"
)

// FormatVersion is the only recipe format this build reads and writes.
const FormatVersion = 1

// FallbackPolicy decides what a failing cell becomes in the clean table. The
// failure is reported either way.
type FallbackPolicy string

const (
	// FallbackUnresolved marks failing cells as Unresolved.
	FallbackUnresolved FallbackPolicy = "unresolved"

	// FallbackKeepText keeps failing cells as their original text.
	FallbackKeepText FallbackPolicy = "keep_text"
)

// Valid reports whether p is a known policy.
func (p FallbackPolicy) Valid() bool {
	return p == FallbackUnresolved || p == FallbackKeepText
}

// Step is the frozen transformation for a single column.
type Step struct {
	Column   string         `json:"column" yaml:"column"`
	Kind     parse.Kind     `json:"kind" yaml:"kind"`
	Params   parse.Params   `json:"params" yaml:"params"`
	Fallback FallbackPolicy `json:"fallback" yaml:"fallback"`
}

func (s Step) clone() Step {
	s.Params = s.Params.Clone()
	return s
}

// Recipe is an ordered, immutable set of steps.
type Recipe struct {
	version int
	steps   []Step
	index   map[string]int
}

// recipeNamespace scopes recipe fingerprints.
var recipeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/JonMunkholm/mlready/recipe"))

// New builds a current-version recipe from steps, in order. An empty
// fallback defaults to FallbackUnresolved. Steps are copied.
func New(steps ...Step) (*Recipe, error) {
	r := &Recipe{
		version: FormatVersion,
		steps:   make([]Step, len(steps)),
		index:   make(map[string]int, len(steps)),
	}

	for i, s := range steps {
		if s.Column == "" {
			return nil, fmt.Errorf("%w: step %d has no column name", ErrMalformed, i)
		}
		if _, dup := r.index[s.Column]; dup {
			return nil, fmt.Errorf("%w: duplicate step for column %q", ErrMalformed, s.Column)
		}
		if s.Kind == "" {
			return nil, fmt.Errorf("%w: step for column %q has no kind", ErrMalformed, s.Column)
		}
		if s.Fallback == "" {
			s.Fallback = FallbackUnresolved
		}
		if !s.Fallback.Valid() {
			return nil, fmt.Errorf("%w: step for column %q has unknown fallback %q", ErrMalformed, s.Column, s.Fallback)
		}

		r.steps[i] = s.clone()
		r.index[s.Column] = i
	}

	return r, nil
}

// Version returns the format version.
func (r *Recipe) Version() int { return r.version }

// Len returns the number of steps.
func (r *Recipe) Len() int { return len(r.steps) }

// Steps returns a copy of the steps in order.
func (r *Recipe) Steps() []Step {
	out := make([]Step, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.clone()
	}
	return out
}

// Step returns a copy of the step for column.
func (r *Recipe) Step(column string) (Step, bool) {
	i, ok := r.index[column]
	if !ok {
		return Step{}, false
	}
	return r.steps[i].clone(), true
}

// Validate checks that the recipe can be replayed with registry: the version
// is supported and every kind is registered.
func (r *Recipe) Validate(registry *parse.Registry) error {
	if r.version != FormatVersion {
		return &VersionError{Got: r.version, Want: FormatVersion}
	}
	for _, s := range r.steps {
		if _, ok := registry.Lookup(s.Kind); !ok {
			return fmt.Errorf("%w: column %q uses unknown parser kind %q", ErrMalformed, s.Column, s.Kind)
		}
	}
	return nil
}

// ID returns a fingerprint derived from the recipe's canonical JSON form.
// Equal recipes always share an ID.
func (r *Recipe) ID() uuid.UUID {
	data, err := r.MarshalJSON()
	if err != nil {
		return uuid.Nil
	}
	return uuid.NewSHA1(recipeNamespace, data)
}
