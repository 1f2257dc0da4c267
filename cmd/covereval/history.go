package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/store"
	"github.com/ricesearch/covereval/internal/web/components"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [series...]",
		Short: "List the MAP history of completed runs",
		Long: `List the MAP of completed runs per series (method:profile:query mode).

With a redis store the recorded history is read. Otherwise the history
is rebuilt from the stored runs.`,
		RunE: runHistory,
	}

	cmd.Flags().Duration("since", 0, "only show points newer than this (e.g. 168h)")
	return cmd
}

// seriesPoints is the JSON output of one series.
type seriesPoints struct {
	Series string              `json:"series"`
	Points []metrics.DataPoint `json:"points"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	since, _ := cmd.Flags().GetDuration("since")
	ctx := cmd.Context()

	var from time.Time
	if since > 0 {
		from = time.Now().Add(-since)
	}

	history, err := a.loadHistory(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly("run history", history)

	names := args
	if len(names) == 0 {
		if names, err = history.Series(ctx); err != nil {
			return err
		}
	}

	out := make([]seriesPoints, 0, len(names))
	for _, name := range names {
		points, err := history.Load(ctx, name, from)
		if err != nil {
			return err
		}
		out = append(out, seriesPoints{Series: name, Points: points})
	}

	if a.format == "json" {
		return a.printJSON(out)
	}
	for _, s := range out {
		fmt.Fprintln(a.out, s.Series)
		for _, p := range s.Points {
			fmt.Fprintf(a.out, "  %s  %s  %s\n", p.Timestamp.Format(time.RFC3339), components.FormatScore(p.Value), p.RunID)
		}
	}
	return nil
}

// loadHistory opens the recorded history, or replays the completed runs
// of the result store into an in-memory one.
func (a *app) loadHistory(ctx context.Context) (metrics.History, error) {
	history, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if a.cfg.Store.Type == "redis" {
		return history, nil
	}

	results, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer a.closeQuietly("result store", results)

	runs, err := results.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if err := replayRuns(ctx, history, runs, a.cfg.Eval.QueryMode); err != nil {
		return nil, err
	}
	return history, nil
}

// replayRuns records the MAP of every completed run into history.
func replayRuns(ctx context.Context, history metrics.History, runs []*store.Run, mode string) error {
	for _, run := range runs {
		if run.Status != store.StatusCompleted || run.Report == nil {
			continue
		}
		series := metrics.SeriesName(run.Method, run.Profile, mode)
		dp := metrics.DataPoint{Timestamp: run.CreatedAt, RunID: run.ID, Value: run.Report.MAP}
		if err := history.Record(ctx, series, dp); err != nil {
			return err
		}
	}
	return nil
}
