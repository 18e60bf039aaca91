package parse

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateKind is returned when a kind is registered twice.
var ErrDuplicateKind = errors.New("parser already registered")

// Registry maps kinds to parsers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[Kind]Parser
}

// NewRegistry returns a registry holding parsers.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	r := &Registry{parsers: make(map[Kind]Parser, len(parsers))}
	for _, p := range parsers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtin returns a new registry holding the built-in parsers.
func Builtin() *Registry {
	r, err := NewRegistry(
		BooleanParser(),
		CurrencyParser(),
		PercentageParser(),
		NumericParser(),
		DateTimeParser(),
		CategoryParser(),
		TextParser(),
	)
	if err != nil {
		panic(fmt.Sprintf("builtin parsers: %v", err))
	}
	return r
}

// Register adds a parser. Kinds must be unique and Parse must be set.
func (r *Registry) Register(p Parser) error {
	if p.Kind == "" {
		return fmt.Errorf("register parser: empty kind")
	}
	if p.Parse == nil {
		return fmt.Errorf("register parser %q: nil parse func", p.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[p.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, p.Kind)
	}
	r.parsers[p.Kind] = p
	return nil
}

// Lookup returns the parser for kind.
func (r *Registry) Lookup(kind Kind) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parsers[kind]
	return p, ok
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.parsers))
	for k := range r.parsers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
