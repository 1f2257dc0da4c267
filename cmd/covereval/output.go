package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/store"
	"github.com/ricesearch/covereval/internal/web/components"
)

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRun writes the summary and report of run.
func (a *app) printRun(run *store.Run) error {
	if a.format == "json" {
		return a.printJSON(run.Summary())
	}

	fmt.Fprintf(a.out, "%s  %s  %s  %s\n", run.ID, run.Label(), run.Status, components.FormatDuration(run.Elapsed))
	if run.Parent != "" {
		fmt.Fprintf(a.out, "  derived from %s\n", run.Parent)
	}
	if run.Error != "" {
		fmt.Fprintf(a.out, "  error: %s\n", run.Error)
	}
	if run.Report != nil {
		a.printReport(run.Report)
	}
	fmt.Fprintln(a.out)
	return nil
}

// printReport writes the metrics of r as aligned text.
func (a *app) printReport(r *evaluation.Report) {
	line := func(label, value string) {
		fmt.Fprintf(a.out, "  %-26s %s\n", label, value)
	}

	line("MAP", components.FormatScore(r.MAP))
	if r.MAPCI.NumBootstraps > 0 {
		line(fmt.Sprintf("MAP %.0f%% CI", r.MAPCI.ConfidenceLevel*100),
			components.FormatScore(r.MAPCI.Lower)+" - "+components.FormatScore(r.MAPCI.Upper))
	}
	line("MRR", components.FormatScore(r.MRR))
	line("Average rank", components.FormatRank(r.AverageRank))
	line("Mean rank of first cover", components.FormatRank(r.MeanRankFirstCover))
	line("Covers identified", fmt.Sprintf("%d", r.CoversIdentified))
	line("Mean coverage", components.FormatPercent(r.MeanCoverage))

	ks := make([]int, 0, len(r.MeanPrecision))
	for k := range r.MeanPrecision {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		line(fmt.Sprintf("P@%d / R@%d", k, k),
			components.FormatScore(r.MeanPrecision[k])+" / "+components.FormatScore(r.MeanRecall[k]))
	}

	line("Queries", fmt.Sprintf("%d (%d evaluated, %d without response, %d singleton, %d unknown)",
		r.Queries, r.Evaluated, r.NoResponseQueries, r.SingletonQueries, r.UnknownQueries))
	if r.BackendFailures > 0 {
		line("Backend failures", fmt.Sprintf("%d", r.BackendFailures))
	}
	if r.SecondaryFailures > 0 {
		line("Secondary failures", fmt.Sprintf("%d", r.SecondaryFailures))
	}
	if r.EmptySample {
		line("Note", "no query contributed to MAP")
	}
}

// printStats writes the counters of an offline rerank.
func (a *app) printStats(stats experiment.RerankStats) error {
	if a.format == "json" {
		return a.printJSON(stats)
	}
	fmt.Fprintf(a.out, "rerank: %d queries, %d reranked, %d missing evidence, %d lookup failures\n",
		stats.Queries, stats.Reranked, stats.Missing, stats.Failures)
	return nil
}

// resultsFileName names the results file of run inside an output directory.
func resultsFileName(run *store.Run) string {
	name := strings.Join([]string{run.Method, run.Split, run.Profile, fmt.Sprint(run.Size)}, "_")
	name = strings.NewReplacer("/", "-", "+", "-", " ", "-").Replace(name)
	return name + ".json"
}

// writeResults stores the {candidates, scores} records of run under dir.
func writeResults(dir string, run *store.Run) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, resultsFileName(run))
	return path, writeRecords(path, run.Results)
}

// writeRecords writes records as a JSON object keyed by query id.
func writeRecords(path string, records map[string]*ranking.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

// readRecords reads a results file written by writeRecords.
func readRecords(path string) (ranking.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var records map[string]*ranking.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidRequest, fmt.Sprintf("decoding %s", path), err)
	}
	return ranking.FromRecords(records)
}
