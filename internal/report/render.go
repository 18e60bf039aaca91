package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/a-h/templ"
)

// RenderText writes a human-readable summary of r to w.
func RenderText(w io.Writer, r *Report) error {
	if _, err := fmt.Fprintf(w, "mode: %s  rows: %d  recipe: %s\n\n", r.Mode, r.Rows, r.RecipeID); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tSTATUS\tTYPE\tSCORE\tAMBIGUOUS\tCONVERTED\tMISSING\tFAILED")
	for _, c := range r.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			c.Name, c.Status, c.Kind, formatScore(c), yesNo(c.Ambiguous),
			c.Converted, c.Missing, c.Failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range r.Columns {
		if len(c.SampleFailures) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s: %d failed\n", c.Name, c.Failed); err != nil {
			return err
		}
		for _, f := range c.SampleFailures {
			if _, err := fmt.Fprintf(w, "  row %d: %q (%s)\n", f.Row, f.Original, f.Reason); err != nil {
				return err
			}
		}
	}

	return nil
}

func formatScore(c Column) string {
	if c.Status != StatusOK || c.Candidates == nil {
		return "-"
	}
	return strconv.FormatFloat(c.Score, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// HTML renders r as an HTML fragment.
func HTML(r *Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}

		p.printf(`<section class="report" data-mode="%s">`, templ.EscapeString(string(r.Mode)))
		p.printf(`<p class="report-summary">%s pass, %d rows, recipe <code>%s</code></p>`,
			templ.EscapeString(string(r.Mode)), r.Rows, templ.EscapeString(r.RecipeID))

		p.printf(`<table class="report-columns"><thead><tr>`)
		for _, h := range []string{"Column", "Status", "Type", "Score", "Ambiguous", "Converted", "Missing", "Failed"} {
			p.printf(`<th>%s</th>`, h)
		}
		p.printf(`</tr></thead><tbody>`)

		for _, c := range r.Columns {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.printf(`<tr class="status-%s">`, templ.EscapeString(string(c.Status)))
			p.printf(`<td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td>`,
				templ.EscapeString(c.Name), templ.EscapeString(string(c.Status)), templ.EscapeString(string(c.Kind)),
				formatScore(c), yesNo(c.Ambiguous), c.Converted, c.Missing, c.Failed)
			p.printf(`</tr>`)
		}
		p.printf(`</tbody></table>`)

		for _, c := range r.Columns {
			if len(c.SampleFailures) == 0 {
				continue
			}
			p.printf(`<details class="report-failures"><summary>%s: %d failed</summary><ul>`,
				templ.EscapeString(c.Name), c.Failed)
			for _, f := range c.SampleFailures {
				p.printf(`<li>row %d: <code>%s</code> (%s)</li>`,
					f.Row, templ.EscapeString(f.Original), templ.EscapeString(string(f.Reason)))
			}
			p.printf(`</ul></details>`)
		}

		p.printf(`</section>`)
		return p.err
	})
}

// htmlWriter keeps the first write error so rendering reads linearly.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
