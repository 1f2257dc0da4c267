package main

import (
	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/runner"
	"github.com/ricesearch/covereval/internal/store"
)

func rerankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rerank",
		Short: "Apply an offline rerank to stored runs",
		Long: `Rerank the responses of a stored run and store the result as a new
run derived from it. The new run is scored against the ground truth of
the parent's split.`,
	}

	cmd.AddCommand(rerankCreditsCmd(), rerankAudioCmd(), rerankOracleCmd())
	return cmd
}

func rerankCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits <run-id>",
		Short: "Promote candidates sharing credited artists with the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReranker(cmd, true, func(a *app, r *runner.Reranker) (*store.Run, experiment.RerankStats, error) {
				role := a.cfg.Eval.RoleType
				if cmd.Flags().Changed("role") {
					role, _ = cmd.Flags().GetString("role")
				}
				proximity := a.cfg.Eval.CreditsProximity
				if cmd.Flags().Changed("proximity") {
					proximity, _ = cmd.Flags().GetFloat64("proximity")
				}
				return r.Credits(cmd.Context(), args[0], role, proximity)
			})
		},
	}
	cmd.Flags().String("role", "", "credited role type (default from config)")
	cmd.Flags().Float64("proximity", 0, "top-set proximity (default from config)")
	return cmd
}

func rerankAudioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio <text-run-id> <audio-run-id>",
		Short: "Promote candidates within an audio distance threshold",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReranker(cmd, false, func(a *app, r *runner.Reranker) (*store.Run, experiment.RerankStats, error) {
				threshold := a.cfg.Eval.AudioThreshold
				if cmd.Flags().Changed("threshold") {
					threshold, _ = cmd.Flags().GetFloat64("threshold")
				}
				return r.Audio(cmd.Context(), args[0], args[1], threshold)
			})
		},
	}
	cmd.Flags().Float64("threshold", 0, "maximum audio distance (default from config)")
	return cmd
}

func rerankOracleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oracle <run-id>",
		Short: "Promote every cover to the top to bound the achievable metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReranker(cmd, false, func(a *app, r *runner.Reranker) (*store.Run, experiment.RerankStats, error) {
				return r.Oracle(cmd.Context(), args[0])
			})
		},
	}
}

type rerankFunc func(a *app, r *runner.Reranker) (*store.Run, experiment.RerankStats, error)

// withReranker opens the result store (and the backend when needed), runs
// fn and prints the new run.
func withReranker(cmd *cobra.Command, needsBackend bool, fn rerankFunc) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	results, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.closeQuietly("result store", results)

	var backends runner.BackendFactory
	if needsBackend {
		backends = a.backends()
	}

	r, err := runner.NewReranker(a.datasets(), backends, results, a.cfg.Eval.Seed, a.log)
	if err != nil {
		return err
	}

	run, stats, err := fn(a, r)
	if err != nil {
		return err
	}
	if err := a.printStats(stats); err != nil {
		return err
	}
	return a.printRun(run)
}
