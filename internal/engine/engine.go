// Package engine runs build and replay passes over a raw table.
//
// A build pass infers one step per column, applies it, and returns the clean
// table with the recipe and report. A replay pass applies an existing recipe
// without inference. Columns are independent and fan out over a bounded
// worker pool; results are joined in column order before anything is
// returned, and a failed or cancelled pass returns only an error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/mlready/internal/infer"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/report"
	"github.com/JonMunkholm/mlready/internal/table"
)

// ErrInvalidOptions is returned by New for options that fail validation.
var ErrInvalidOptions = errors.New("invalid engine options")

var validate = validator.New()

// Options configure an Engine. The zero Registry means parse.Builtin().
type Options struct {
	Inference         infer.Options
	Registry          *parse.Registry       `validate:"-"`
	Workers           int                   `validate:"gte=0"`
	Fallback          recipe.FallbackPolicy `validate:"omitempty,oneof=unresolved keep_text"`
	MaxFailureSamples int                   `validate:"gte=0"`
}

// DefaultOptions returns the built-in settings.
func DefaultOptions() Options {
	return Options{
		Inference:         infer.DefaultOptions(),
		Fallback:          recipe.FallbackUnresolved,
		MaxFailureSamples: report.DefaultMaxSamples,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(msgs, "; "))
}

// Result is the output of a pass.
type Result struct {
	Clean  *table.CleanTable
	Recipe *recipe.Recipe
	Report *report.Report
}

// Engine runs passes with fixed options. It is safe for concurrent use.
type Engine struct {
	opts     Options
	registry *parse.Registry
	inferrer *infer.Inferrer
	workers  int
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = parse.Builtin()
	}

	inferrer, err := infer.New(registry, opts.Inference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	if opts.Fallback == "" {
		opts.Fallback = recipe.FallbackUnresolved
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Engine{
		opts:     opts,
		registry: registry,
		inferrer: inferrer,
		workers:  workers,
	}, nil
}

// columnOutput is what one column unit hands back to the join.
type columnOutput struct {
	clean table.CleanColumn
	step  recipe.Step
	entry report.Column
}

// Build infers a recipe for raw and applies it.
func (e *Engine) Build(ctx context.Context, raw *table.RawTable) (*Result, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "mode", report.ModeBuild)

	outs := make([]columnOutput, raw.NumColumns())
	err := e.fanOut(ctx, len(outs), func(i int) error {
		outs[i] = e.buildColumn(ctx, raw.ColumnAt(i))
		return nil
	})
	if err != nil {
		return nil, err
	}

	steps := make([]recipe.Step, len(outs))
	columns := make([]table.CleanColumn, len(outs))
	entries := make([]report.Column, len(outs))
	for i, out := range outs {
		steps[i] = out.step
		columns[i] = out.clean
		entries[i] = out.entry
	}

	rec, err := recipe.New(steps...)
	if err != nil {
		return nil, fmt.Errorf("assemble recipe: %w", err)
	}

	res, err := e.finish(report.ModeBuild, raw.Rows(), rec, columns, entries)
	if err != nil {
		return nil, err
	}

	log.Info("pass finished",
		"columns", len(columns),
		"rows", raw.Rows(),
		"failed_cells", res.Report.Failed(),
		"ambiguous", len(res.Report.Ambiguous()),
		"recipe_id", res.Report.RecipeID,
		"duration", time.Since(start),
	)
	return res, nil
}

func (e *Engine) buildColumn(ctx context.Context, col table.Column) columnOutput {
	d := e.inferrer.Infer(col.Cells)

	logging.FromContext(ctx).Debug("column inferred",
		"column", col.Name,
		"kind", d.Kind,
		"score", d.Score,
		"ambiguous", d.Ambiguous,
	)

	step := recipe.Step{
		Column:   col.Name,
		Kind:     d.Kind,
		Params:   d.Params,
		Fallback: e.opts.Fallback,
	}

	// Inference only returns registered kinds.
	p, _ := e.registry.Lookup(d.Kind)

	candidates := d.Candidates
	if candidates == nil {
		candidates = []infer.Candidate{}
	}
	collector := e.collector(step)
	collector.SetInference(d.Score, d.Ambiguous, candidates)

	return e.applyStep(p, step, col.Cells, collector)
}

// Replay applies rec to raw without inference. Recipe columns absent from
// raw are reported missing; raw columns without a step pass through as text.
func (e *Engine) Replay(ctx context.Context, raw *table.RawTable, rec *recipe.Recipe) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil recipe", recipe.ErrMalformed)
	}
	if err := rec.Validate(e.registry); err != nil {
		return nil, err
	}

	start := time.Now()
	log := logging.WithFields(ctx, "mode", report.ModeReplay, "recipe_id", rec.ID().String())

	names := raw.Names()
	outs := make([]columnOutput, len(names))
	err := e.fanOut(ctx, len(outs), func(i int) error {
		outs[i] = e.replayColumn(rec, raw.ColumnAt(i))
		return nil
	})
	if err != nil {
		return nil, err
	}

	columns := make([]table.CleanColumn, len(outs))
	entries := make([]report.Column, 0, len(outs)+rec.Len())
	for i, out := range outs {
		columns[i] = out.clean
		entries = append(entries, out.entry)
	}

	var missing []string
	for _, s := range rec.Steps() {
		if _, ok := raw.Cells(s.Column); !ok {
			entries = append(entries, report.MissingColumn(s.Column, s.Kind))
			missing = append(missing, s.Column)
		}
	}

	res, err := e.finish(report.ModeReplay, raw.Rows(), rec, columns, entries)
	if err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		log.Warn("recipe columns missing from table", "columns", missing)
	}
	log.Info("pass finished",
		"columns", len(columns),
		"rows", raw.Rows(),
		"failed_cells", res.Report.Failed(),
		"duration", time.Since(start),
	)
	return res, nil
}

func (e *Engine) replayColumn(rec *recipe.Recipe, col table.Column) columnOutput {
	step, ok := rec.Step(col.Name)
	if !ok {
		return e.passThrough(col)
	}

	// Validate has already checked every kind.
	p, _ := e.registry.Lookup(step.Kind)
	return e.applyStep(p, step, col.Cells, e.collector(step))
}

// passThrough keeps a column the recipe does not cover as text.
func (e *Engine) passThrough(col table.Column) columnOutput {
	step := recipe.Step{
		Column:   col.Name,
		Kind:     parse.KindText,
		Params:   parse.Params{MissingTokens: e.opts.Inference.Parse.MissingTokens},
		Fallback: recipe.FallbackKeepText,
	}
	p, ok := e.registry.Lookup(parse.KindText)
	if !ok {
		p = parse.TextParser()
	}

	out := e.applyStep(p, step, col.Cells, e.collector(step))
	out.entry.Status = report.StatusNotInRecipe
	return out
}

func (e *Engine) collector(step recipe.Step) *report.Collector {
	return report.NewCollector(step.Column, step.Kind, e.opts.MaxFailureSamples)
}

// applyStep runs one frozen step over every cell of a column.
func (e *Engine) applyStep(p parse.Parser, step recipe.Step, cells []table.Cell, collector *report.Collector) columnOutput {
	values := make([]table.Value, len(cells))
	parseCell := parse.Bind(p, step.Params)

	for row, c := range cells {
		original := c.String()
		r := parseCell(c)
		collector.Record(row, original, r)

		switch {
		case r.OK():
			values[row] = r.Value
		case step.Fallback == recipe.FallbackKeepText:
			values[row] = table.TextValue(original)
		default:
			values[row] = table.UnresolvedValue(original)
		}
	}

	return columnOutput{
		clean: table.CleanColumn{Name: step.Column, Values: values},
		step:  step,
		entry: collector.Column(),
	}
}

func (e *Engine) finish(mode report.Mode, rows int, rec *recipe.Recipe, columns []table.CleanColumn, entries []report.Column) (*Result, error) {
	clean, err := table.NewClean(rows, columns)
	if err != nil {
		return nil, fmt.Errorf("assemble clean table: %w", err)
	}

	return &Result{
		Clean:  clean,
		Recipe: rec,
		Report: &report.Report{
			Mode:     mode,
			RecipeID: rec.ID().String(),
			Rows:     rows,
			Columns:  entries,
		},
	}, nil
}

// fanOut runs fn for every column index on at most e.workers goroutines.
// Cancellation is observed before each column starts.
func (e *Engine) fanOut(ctx context.Context, n int, fn func(i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// The loop may have stopped early without any unit reporting it.
	return ctx.Err()
}
