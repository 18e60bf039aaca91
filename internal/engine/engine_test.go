package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/report"
	"github.com/JonMunkholm/mlready/internal/table"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func col(name string, cells ...string) table.Column {
	return table.Column{Name: name, Cells: table.Texts(cells...)}
}

func demoTable(t *testing.T) *table.RawTable {
	t.Helper()
	raw, err := table.New(
		col("Price", "$1,200", "$45", "1.2M"),
		col("Membership", "Yes", "no", "YES"),
		col("Notes", "abc", "1", "true"),
	)
	require.NoError(t, err)
	return raw
}

func numbers(t *testing.T, values []table.Value) []float64 {
	t.Helper()
	out := make([]float64, len(values))
	for i, v := range values {
		require.Equal(t, table.ValueNumber, v.Kind, "row %d", i)
		out[i] = v.Num
	}
	return out
}

func TestBuild_Currency(t *testing.T) {
	raw, err := table.New(col("Price", "$1,200", "$45"))
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	step, ok := res.Recipe.Step("Price")
	require.True(t, ok)
	assert.Equal(t, parse.KindCurrency, step.Kind)

	values, ok := res.Clean.Values("Price")
	require.True(t, ok)
	assert.Equal(t, []float64{1200, 45}, numbers(t, values))
}

func TestBuild_MagnitudeAndCurrencyTogether(t *testing.T) {
	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), demoTable(t))
	require.NoError(t, err)

	values, _ := res.Clean.Values("Price")
	assert.Equal(t, []float64{1200, 45, 1200000}, numbers(t, values))

	entry, ok := res.Report.Column("Price")
	require.True(t, ok)
	assert.Zero(t, entry.Failed)
}

func TestBuild_Boolean(t *testing.T) {
	raw, err := table.New(col("Member", "Yes", "no"))
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	values, _ := res.Clean.Values("Member")
	require.Len(t, values, 2)
	assert.Equal(t, table.BoolValue(true), values[0])
	assert.Equal(t, table.BoolValue(false), values[1])
}

func TestBuild_FallbackKeepsTextVerbatim(t *testing.T) {
	cells := []string{"abc", "1", "true", "2024-01-01"}
	raw, err := table.New(col("Mixed", cells...))
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	entry, _ := res.Report.Column("Mixed")
	assert.Equal(t, parse.KindText, entry.Kind)
	assert.True(t, entry.Ambiguous)
	assert.NotEmpty(t, entry.Candidates)

	values, _ := res.Clean.Values("Mixed")
	for i, v := range values {
		assert.Equal(t, table.TextValue(cells[i]), v)
	}
}

func TestBuild_ReportsOutlier(t *testing.T) {
	raw, err := table.New(col("Qty", "10", "20", "30", "forty", "50"))
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	entry, _ := res.Report.Column("Qty")
	assert.Equal(t, parse.KindNumeric, entry.Kind)
	assert.Equal(t, 1, entry.Failed)
	assert.Equal(t, 4, entry.Converted)
	require.Len(t, entry.SampleFailures, 1)
	assert.Equal(t, report.Failure{Row: 3, Original: "forty", Reason: parse.ReasonNotNumeric}, entry.SampleFailures[0])

	values, _ := res.Clean.Values("Qty")
	assert.Equal(t, table.UnresolvedValue("forty"), values[3])
}

func TestBuild_KeepTextFallback(t *testing.T) {
	raw, err := table.New(col("Qty", "10", "20", "30", "forty", "50"))
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Fallback = recipe.FallbackKeepText
	res, err := newEngine(t, opts).Build(context.Background(), raw)
	require.NoError(t, err)

	values, _ := res.Clean.Values("Qty")
	assert.Equal(t, table.TextValue("forty"), values[3])

	entry, _ := res.Report.Column("Qty")
	assert.Equal(t, 1, entry.Failed, "kept text still counts as failed")
}

func TestBuild_ShapePreserved(t *testing.T) {
	raw, err := table.New(
		table.Column{Name: "b", Cells: []table.Cell{table.Number(1), table.Missing(), table.Text("3")}},
		col("a", "", "", ""),
		col("c", "x", "y", "x"),
	)
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, raw.Names(), res.Clean.Names())
	assert.Equal(t, raw.Rows(), res.Clean.Rows())
	assert.Equal(t, raw.Rows(), res.Report.Rows)
	assert.Equal(t, raw.Names(), stepColumns(res.Recipe))

	entry, _ := res.Report.Column("a")
	assert.Equal(t, 3, entry.Missing)
	assert.True(t, entry.Ambiguous)
}

func TestBuild_SparseRepeatsDoNotFormCategory(t *testing.T) {
	// Every sixth row repeats "a" or "b", which is exactly where the stride
	// sample lands; every other row is unique.
	const rows = 6000
	cells := make([]string, rows)
	for i := range cells {
		switch {
		case i%12 == 0:
			cells[i] = "a"
		case i%6 == 0:
			cells[i] = "b"
		default:
			cells[i] = fmt.Sprintf("id-%d", i)
		}
	}
	raw := table.MustNew(col("ID", cells...))

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	step, ok := res.Recipe.Step("ID")
	require.True(t, ok)
	assert.Equal(t, parse.KindText, step.Kind)
	assert.Empty(t, step.Params.Categories)

	entry, _ := res.Report.Column("ID")
	assert.True(t, entry.Ambiguous)
}

func TestBuild_NaNNumberIsMissing(t *testing.T) {
	raw := table.MustNew(table.Column{Name: "x", Cells: []table.Cell{table.Number(1), table.Number(math.NaN()), table.Number(3)}})

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)

	entry, _ := res.Report.Column("x")
	assert.Equal(t, parse.KindNumeric, entry.Kind)
	assert.Equal(t, 1, entry.Missing)
	assert.Equal(t, 2, entry.Converted)

	values, _ := res.Clean.Values("x")
	assert.Equal(t, table.MissingValue(), values[1])

	_, err = json.Marshal(res.Clean)
	assert.NoError(t, err)
}

func TestBuild_EmptyTable(t *testing.T) {
	raw, err := table.New()
	require.NoError(t, err)

	res, err := newEngine(t, DefaultOptions()).Build(context.Background(), raw)
	require.NoError(t, err)
	assert.Zero(t, res.Clean.NumColumns())
	assert.Zero(t, res.Recipe.Len())
}

func stepColumns(r *recipe.Recipe) []string {
	var out []string
	for _, s := range r.Steps() {
		out = append(out, s.Column)
	}
	return out
}

func TestBuild_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Workers = 4
	e := newEngine(t, opts)

	first, err := e.Build(context.Background(), demoTable(t))
	require.NoError(t, err)
	second, err := e.Build(context.Background(), demoTable(t))
	require.NoError(t, err)

	assert.Equal(t, first.Recipe.Steps(), second.Recipe.Steps())
	assert.Equal(t, first.Recipe.ID(), second.Recipe.ID())
	assert.Equal(t, first.Clean, second.Clean)
}

func TestReplay_Idempotent(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	raw := demoTable(t)

	built, err := e.Build(context.Background(), raw)
	require.NoError(t, err)

	data, err := recipe.Marshal(built.Recipe, recipe.FormatJSON)
	require.NoError(t, err)
	reloaded, err := recipe.ParseJSON(data)
	require.NoError(t, err)

	replayed, err := e.Replay(context.Background(), raw, reloaded)
	require.NoError(t, err)

	assert.Equal(t, built.Clean, replayed.Clean)
	assert.Equal(t, report.ModeReplay, replayed.Report.Mode)
	assert.Equal(t, built.Report.RecipeID, replayed.Report.RecipeID)
	assert.Equal(t, built.Recipe.Steps(), reloaded.Steps(), "replay leaves the recipe untouched")
}

func TestReplay_MissingColumn(t *testing.T) {
	e := newEngine(t, DefaultOptions())

	built, err := e.Build(context.Background(), demoTable(t))
	require.NoError(t, err)

	next, err := table.New(
		col("Notes", "x", "y"),
		col("Price", "$9", "oops"),
		col("Extra", "1", "2"),
	)
	require.NoError(t, err)

	res, err := e.Replay(context.Background(), next, built.Recipe)
	require.NoError(t, err)

	assert.Equal(t, []string{"Notes", "Price", "Extra"}, res.Clean.Names())
	assert.Equal(t, []string{"Membership"}, res.Report.MissingColumns())

	names := make([]string, len(res.Report.Columns))
	for i, c := range res.Report.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Notes", "Price", "Extra", "Membership"}, names)

	price, _ := res.Report.Column("Price")
	assert.Equal(t, report.StatusOK, price.Status)
	assert.Equal(t, 1, price.Failed)
	assert.Equal(t, "oops", price.SampleFailures[0].Original)
	assert.Nil(t, price.Candidates)

	extra, _ := res.Report.Column("Extra")
	assert.Equal(t, report.StatusNotInRecipe, extra.Status)
	assert.Equal(t, parse.KindText, extra.Kind)

	values, _ := res.Clean.Values("Extra")
	assert.Equal(t, table.TextValue("1"), values[0])
}

func TestReplay_RejectsUnknownKind(t *testing.T) {
	rec, err := recipe.New(recipe.Step{Column: "a", Kind: "geo"})
	require.NoError(t, err)

	raw, err := table.New(col("a", "x"))
	require.NoError(t, err)

	_, err = newEngine(t, DefaultOptions()).Replay(context.Background(), raw, rec)
	assert.ErrorIs(t, err, recipe.ErrMalformed)
}

func TestReplay_NilRecipe(t *testing.T) {
	_, err := newEngine(t, DefaultOptions()).Replay(context.Background(), demoTable(t), nil)
	assert.ErrorIs(t, err, recipe.ErrMalformed)
}

func TestPass_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(t, DefaultOptions())

	res, err := e.Build(ctx, demoTable(t))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))

	rec, err := recipe.New()
	require.NoError(t, err)
	res, err = e.Replay(ctx, demoTable(t), rec)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"negative workers", func(o *Options) { o.Workers = -1 }},
		{"threshold above one", func(o *Options) { o.Inference.ScoreThreshold = 1.5 }},
		{"zero sample size", func(o *Options) { o.Inference.SampleSize = 0 }},
		{"ratio below zero", func(o *Options) { o.Inference.Parse.CategoryCardinalityRatio = -0.1 }},
		{"unknown fallback", func(o *Options) { o.Fallback = "drop" }},
		{"negative samples", func(o *Options) { o.MaxFailureSamples = -2 }},
		{"empty priority", func(o *Options) { o.Inference.Priority = nil }},
		{"unregistered priority", func(o *Options) { o.Inference.Priority = []parse.Kind{"geo"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			_, err := New(opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestEngine_ConcurrentPassesWithDifferentOptions(t *testing.T) {
	strict := newEngine(t, DefaultOptions())

	lenientOpts := DefaultOptions()
	lenientOpts.Inference.ScoreThreshold = 0.5
	lenient := newEngine(t, lenientOpts)

	raw, err := table.New(col("v", "10", "20", "x", "y"))
	require.NoError(t, err)

	kinds := make(chan parse.Kind, 2)
	for _, e := range []*Engine{strict, lenient} {
		go func() {
			res, err := e.Build(context.Background(), raw)
			if err != nil {
				kinds <- ""
				return
			}
			entry, _ := res.Report.Column("v")
			kinds <- entry.Kind
		}()
	}

	got := []parse.Kind{<-kinds, <-kinds}
	assert.ElementsMatch(t, []parse.Kind{parse.KindText, parse.KindNumeric}, got)
}
