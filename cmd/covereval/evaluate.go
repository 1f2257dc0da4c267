package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/runner"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the configured experiment matrix",
		Long: `Run every configured method against the backend, score the ranked
responses against the ground truth of the selected split and store
each run.

Runs are spread over a bounded worker pool. A failing run is reported
and stored as failed without stopping the others.`,
		RunE: runEvaluate,
	}

	cmd.Flags().StringP("mode", "m", "", "dataset split (train, test)")
	cmd.Flags().IntP("workers", "t", 0, "concurrent runs (0 = number of CPUs)")
	cmd.Flags().StringP("profile", "e", "", "experiment profile (msd, msd_no_dup, dzr_msd, shs, shs_no_dup)")
	cmd.Flags().BoolP("duplicates", "d", false, "exclude official duplicates from the candidates")
	cmd.Flags().IntP("size", "s", 0, "number of candidates per query")
	cmd.Flags().StringSlice("methods", nil, "methods to run (default from config)")
	cmd.Flags().String("out", "", "directory to write each run's results to")

	return cmd
}

// applyEvalFlags overrides the evaluation config with the flags set on cmd.
func (a *app) applyEvalFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		a.cfg.Eval.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("workers") {
		a.cfg.Eval.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("profile") {
		a.cfg.Eval.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("duplicates") {
		a.cfg.Eval.ExcludeDuplicates, _ = flags.GetBool("duplicates")
	}
	if flags.Changed("size") {
		a.cfg.Eval.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("methods") {
		a.cfg.Eval.Methods, _ = flags.GetStringSlice("methods")
	}
	return a.cfg.Validate()
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.applyEvalFlags(cmd); err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")

	specs, err := runner.SpecsFromConfig(a.cfg.Eval)
	if err != nil {
		return err
	}
	settings, err := runner.Settings(a.cfg.Eval)
	if err != nil {
		return err
	}

	results, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.closeQuietly("result store", results)

	history, err := a.openHistory()
	if err != nil {
		return err
	}
	defer a.closeQuietly("run history", history)

	eventBus, err := a.openBus()
	if err != nil {
		return err
	}
	defer a.closeQuietly("event bus", eventBus)

	evaluator, err := runner.NewEvaluator(runner.Deps{
		Datasets: a.datasets(),
		Backends: a.backends(),
		Settings: settings,
		Seed:     a.cfg.Eval.Seed,
		Store:    results,
		History:  history,
		Bus:      eventBus,
		Topic:    a.cfg.Bus.Topic,
		Log:      a.log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := runner.NewPool(a.cfg.Eval.Workers, evaluator, a.log)
	a.log.Info("Starting evaluation", "runs", len(specs), "workers", pool.Workers())

	outcomes, runErr := pool.Run(ctx, specs)

	for _, o := range outcomes {
		if o.Run == nil {
			continue
		}
		if err := a.printRun(o.Run); err != nil {
			return err
		}
		if outDir != "" && o.Err == nil {
			path, err := writeResults(outDir, o.Run)
			if err != nil {
				return err
			}
			a.log.Info("Results written", "run_id", o.Run.ID, "path", path)
		}
	}

	if runErr != nil {
		return fmt.Errorf("evaluation finished with failures:\n%w", runErr)
	}
	return nil
}
