package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/ranking"
)

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Score a stored collection against a dataset",
		Long: `Compute the metrics report of a stored run (--run) or of a results
file (--file) against a ground-truth CSV.

With --size the responses are pruned before scoring. --out writes the
pruned collection to a new results file.`,
		RunE: runMetrics,
	}

	cmd.Flags().String("run", "", "stored run id")
	cmd.Flags().String("file", "", "results file ({query: {candidates, scores}})")
	cmd.Flags().String("dataset", "", "ground-truth CSV (default: the configured split)")
	cmd.Flags().IntP("size", "s", 0, "prune responses to this many candidates (0 = keep all)")
	cmd.Flags().Bool("per-query", false, "include per-query results (json output)")
	cmd.Flags().String("out", "", "write the pruned collection to this file")

	return cmd
}

func runMetrics(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run")
	file, _ := cmd.Flags().GetString("file")
	dataset, _ := cmd.Flags().GetString("dataset")
	size, _ := cmd.Flags().GetInt("size")
	perQuery, _ := cmd.Flags().GetBool("per-query")
	out, _ := cmd.Flags().GetString("out")

	if (runID == "") == (file == "") {
		return fmt.Errorf("exactly one of --run or --file is required")
	}
	if size < 0 {
		return fmt.Errorf("size must not be negative")
	}

	split := a.cfg.Eval.Mode
	var c ranking.Collection
	if runID != "" {
		results, err := a.openStore()
		if err != nil {
			return err
		}
		defer a.closeQuietly("result store", results)

		run, err := results.GetRun(cmd.Context(), runID)
		if err != nil {
			return err
		}
		if c, err = run.Collection(); err != nil {
			return err
		}
		if run.Split != "" {
			split = run.Split
		}
	} else {
		if c, err = readRecords(file); err != nil {
			return err
		}
	}

	if dataset == "" {
		sp, err := experiment.ParseSplit(split)
		if err != nil {
			return err
		}
		dataset = a.cfg.DatasetPath(sp)
	}
	rows, err := groundtruth.LoadCSV(dataset)
	if err != nil {
		return err
	}
	gt, err := groundtruth.BuildFromCSV(rows)
	if err != nil {
		return err
	}

	if size > 0 {
		c = c.Prune(size)
	}
	if out != "" {
		if err := writeRecords(out, ranking.ToRecords(c)); err != nil {
			return err
		}
		a.log.Info("Pruned results written", "path", out, "size", size)
	}

	opts := evaluation.DefaultOptions(size)
	opts.Seed = a.cfg.Eval.Seed
	opts.PerQuery = perQuery
	report := evaluation.Evaluate(c, gt, opts)

	if a.format == "json" {
		return a.printJSON(report)
	}
	fmt.Fprintf(a.out, "%s (%d cliques, %d tracks)\n", dataset, gt.Cliques(), gt.Len())
	a.printReport(report)
	return nil
}
