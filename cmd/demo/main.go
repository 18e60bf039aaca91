// Command demo runs a build pass and prints the clean table, the recipe and
// the report. With no arguments it uses a small built-in table; otherwise
// the first argument names a CSV or XLSX file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/report"
	"github.com/JonMunkholm/mlready/internal/source"
	"github.com/JonMunkholm/mlready/internal/table"
)

func main() {
	format := flag.String("recipe-format", "yaml", "recipe output format: json or yaml")
	replay := flag.String("replay", "", "replay this recipe file instead of building one")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := logging.Setup(*logLevel, logging.FormatText); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(os.Stdout, flag.Arg(0), *replay, *format); err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, input, replayPath, format string) error {
	recipeFormat, err := recipe.ParseFormat(format)
	if err != nil {
		return err
	}

	raw, err := load(input)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.DefaultOptions())
	if err != nil {
		return err
	}

	ctx := context.Background()
	var res *engine.Result
	if replayPath != "" {
		rec, err := readRecipe(replayPath)
		if err != nil {
			return err
		}
		res, err = eng.Replay(ctx, raw, rec)
		if err != nil {
			return err
		}
	} else {
		res, err = eng.Build(ctx, raw)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "== clean table")
	if err := printClean(w, res.Clean); err != nil {
		return err
	}

	data, err := recipe.Marshal(res.Recipe, recipeFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\n== recipe")
	fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))

	fmt.Fprintln(w, "\n== report")
	return report.RenderText(w, res.Report)
}

func load(path string) (*table.RawTable, error) {
	if path == "" {
		return table.MustNew(
			table.Column{Name: "Price", Cells: table.Texts("$1,200", "$45", "1.2M")},
			table.Column{Name: "Membership", Cells: table.Texts("Yes", "no", "YES")},
		), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return source.Read(path, f)
}

func readRecipe(path string) (*recipe.Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return recipe.Read(f)
}

func printClean(w io.Writer, ct *table.CleanTable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(ct.Names(), "\t"))
	for i := 0; i < ct.Rows(); i++ {
		row := ct.Row(i)
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
