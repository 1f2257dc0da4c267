package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"

	"github.com/a-h/templ"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/store"
	"github.com/ricesearch/covereval/internal/web/components"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}` +
	`table{border-collapse:collapse;margin:1rem 0}th,td{padding:.35rem .75rem;border-bottom:1px solid #e5e7eb;text-align:left}` +
	`th{background:#f9fafb}.failed{color:#b91c1c}.completed{color:#047857}.muted{color:#6b7280}`

// writer accumulates the first write error so views read top to bottom.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) printf(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

func (w *writer) row(label, value string) {
	w.raw("<tr><th>")
	w.text(label)
	w.raw("</th><td>")
	w.text(value)
	w.raw("</td></tr>")
}

func (w *writer) render(ctx context.Context, c templ.Component) {
	if w.err == nil {
		w.err = c.Render(ctx, w.w)
	}
}

// Page wraps body in the HTML document.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		w.text(title)
		w.raw(`</title><style>` + pageStyle + `</style></head><body>`)
		w.render(ctx, body)
		w.raw(`</body></html>`)
		return w.err
	})
}

func runLink(id string) string {
	return "/v1/runs/" + url.PathEscape(id) + "/report"
}

// RunList renders a table of run summaries.
func RunList(runs []*store.Run) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Evaluation runs</h1>`)
		if len(runs) == 0 {
			w.raw(`<p class="muted">No runs stored yet.</p>`)
			return w.err
		}

		w.raw(`<table><thead><tr><th>Run</th><th>Status</th><th>MAP</th><th>Queries</th><th>Created</th><th>Elapsed</th></tr></thead><tbody>`)
		for _, run := range runs {
			w.raw(`<tr><td><a href="`)
			w.text(runLink(run.ID))
			w.raw(`">`)
			w.text(run.Label())
			w.raw(`</a></td><td class="`)
			w.text(string(run.Status))
			w.raw(`">`)
			w.text(string(run.Status))
			w.raw(`</td><td>`)
			if run.Report != nil {
				w.text(components.FormatScore(run.Report.MAP))
				w.raw(`</td><td>`)
				w.printf("%d", run.Report.Queries)
			} else {
				w.raw(`-</td><td>-`)
			}
			w.raw(`</td><td>`)
			w.text(components.FormatRelativeTime(run.CreatedAt))
			w.raw(`</td><td>`)
			w.text(components.FormatDuration(run.Elapsed))
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

// RunReport renders the metrics of one run.
func RunReport(run *store.Run) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<p><a href="/">All runs</a></p><h1>`)
		w.text(run.Label())
		w.raw(`</h1><table>`)
		w.row("Run", run.ID)
		w.row("Status", string(run.Status))
		if run.Parent != "" {
			w.raw(`<tr><th>Derived from</th><td><a href="`)
			w.text(runLink(run.Parent))
			w.raw(`">`)
			w.text(run.Parent)
			w.raw(`</a></td></tr>`)
		}
		w.row("Created", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		w.row("Elapsed", components.FormatDuration(run.Elapsed))
		w.raw(`</table>`)

		if run.Error != "" {
			w.raw(`<p class="failed">`)
			w.text(run.Error)
			w.raw(`</p>`)
		}
		if run.Report != nil {
			w.render(ctx, reportTables(run.Report))
		}
		return w.err
	})
}

func reportTables(r *evaluation.Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}

		w.raw(`<h2>Metrics</h2><table>`)
		w.row("MAP", components.FormatScore(r.MAP))
		if r.MAPCI.NumBootstraps > 0 {
			w.row(fmt.Sprintf("MAP %.0f%% CI", r.MAPCI.ConfidenceLevel*100),
				components.FormatScore(r.MAPCI.Lower)+" - "+components.FormatScore(r.MAPCI.Upper))
		}
		w.row("MAP std. dev.", components.FormatScore(r.MAPStdDev))
		w.row("Average rank", components.FormatRank(r.AverageRank))
		w.row("Mean rank of first cover", components.FormatRank(r.MeanRankFirstCover))
		w.row("Covers identified", fmt.Sprintf("%d", r.CoversIdentified))
		w.row("Mean coverage", components.FormatPercent(r.MeanCoverage))
		w.row("MRR", components.FormatScore(r.MRR))
		w.raw(`</table>`)

		if len(r.MeanPrecision) > 0 {
			ks := make([]int, 0, len(r.MeanPrecision))
			for k := range r.MeanPrecision {
				ks = append(ks, k)
			}
			sort.Ints(ks)

			w.raw(`<h2>Cutoffs</h2><table><thead><tr><th>k</th><th>Precision</th><th>Recall</th></tr></thead><tbody>`)
			for _, k := range ks {
				w.printf(`<tr><td>%d</td><td>`, k)
				w.text(components.FormatScore(r.MeanPrecision[k]))
				w.raw(`</td><td>`)
				w.text(components.FormatScore(r.MeanRecall[k]))
				w.raw(`</td></tr>`)
			}
			w.raw(`</tbody></table>`)
		}

		w.raw(`<h2>Queries</h2><table>`)
		w.row("Total", fmt.Sprintf("%d", r.Queries))
		w.row("Evaluated", fmt.Sprintf("%d", r.Evaluated))
		w.row("Without response", fmt.Sprintf("%d", r.NoResponseQueries))
		w.row("Empty responses", fmt.Sprintf("%d", r.EmptyResponses))
		w.row("Singleton cliques", fmt.Sprintf("%d", r.SingletonQueries))
		w.row("Unknown", fmt.Sprintf("%d", r.UnknownQueries))
		w.row("Backend failures", fmt.Sprintf("%d", r.BackendFailures))
		w.row("Secondary failures", fmt.Sprintf("%d", r.SecondaryFailures))
		w.raw(`</table>`)

		if r.EmptySample {
			w.raw(`<p class="muted">No query contributed to MAP.</p>`)
		}
		return w.err
	})
}
