package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/store"
)

// Suffixes appended to the parent method of a reranked run.
const (
	SuffixCredits = "+credits_rerank"
	SuffixAudio   = "+audio_rerank"
	SuffixOracle  = "+oracle"
)

// Reranker applies offline reranks to stored runs and stores the results
// as new runs whose Parent is the reranked run.
type Reranker struct {
	datasets DatasetLoader
	backends BackendFactory
	store    *store.ResultStore
	seed     int64
	log      *logger.Logger
}

// NewReranker creates a reranker. backends is only needed for credit
// lookups.
func NewReranker(datasets DatasetLoader, backends BackendFactory, results *store.ResultStore, seed int64, log *logger.Logger) (*Reranker, error) {
	if datasets == nil {
		return nil, errors.ValidationError("dataset loader is required")
	}
	if results == nil {
		return nil, errors.ValidationError("result store is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Reranker{datasets: datasets, backends: backends, store: results, seed: seed, log: log}, nil
}

// Credits reranks run id by credited role artists.
func (r *Reranker) Credits(ctx context.Context, id, roleType string, proximity float64) (*store.Run, experiment.RerankStats, error) {
	if r.backends == nil {
		return nil, experiment.RerankStats{}, errors.ValidationError("credits rerank needs a search backend")
	}
	parent, c, err := r.load(ctx, id)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}

	backend, err := r.backends(ctx)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}
	defer backend.Close()

	start := time.Now()
	out, stats, err := experiment.RerankCredits(ctx, c, backend, roleType, proximity, r.log.WithRun(id))
	if err != nil {
		return nil, stats, err
	}
	run, err := r.finish(ctx, parent, SuffixCredits, out, time.Since(start))
	return run, stats, err
}

// Audio reranks text run textID with the audio distances of run audioID.
func (r *Reranker) Audio(ctx context.Context, textID, audioID string, threshold float64) (*store.Run, experiment.RerankStats, error) {
	parent, text, err := r.load(ctx, textID)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}
	_, audio, err := r.load(ctx, audioID)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}

	start := time.Now()
	out, stats, err := experiment.RerankAudio(text, audio, threshold)
	if err != nil {
		return nil, stats, err
	}
	run, err := r.finish(ctx, parent, SuffixAudio, out, time.Since(start))
	return run, stats, err
}

// Oracle promotes the clique members of every response of run id.
func (r *Reranker) Oracle(ctx context.Context, id string) (*store.Run, experiment.RerankStats, error) {
	parent, c, err := r.load(ctx, id)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}
	gt, err := r.groundTruth(parent)
	if err != nil {
		return nil, experiment.RerankStats{}, err
	}

	start := time.Now()
	out, stats := experiment.Oracle(c, gt)
	run, err := r.finishWith(ctx, parent, SuffixOracle, out, gt, time.Since(start))
	return run, stats, err
}

func (r *Reranker) load(ctx context.Context, id string) (*store.Run, ranking.Collection, error) {
	run, err := r.store.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != store.StatusCompleted {
		return nil, nil, errors.ValidationError(fmt.Sprintf("run %s did not complete", id))
	}
	c, err := run.Collection()
	if err != nil {
		return nil, nil, errors.InternalError(fmt.Sprintf("decode run %s", id), err)
	}
	return run, c, nil
}

func (r *Reranker) groundTruth(run *store.Run) (*groundtruth.Index, error) {
	split, err := experiment.ParseSplit(run.Split)
	if err != nil {
		return nil, err
	}
	rows, err := r.datasets(split)
	if err != nil {
		return nil, err
	}
	return groundtruth.BuildFromCSV(rows)
}

func (r *Reranker) finish(ctx context.Context, parent *store.Run, suffix string, c ranking.Collection, elapsed time.Duration) (*store.Run, error) {
	gt, err := r.groundTruth(parent)
	if err != nil {
		return nil, err
	}
	return r.finishWith(ctx, parent, suffix, c, gt, elapsed)
}

func (r *Reranker) finishWith(ctx context.Context, parent *store.Run, suffix string, c ranking.Collection, gt *groundtruth.Index, elapsed time.Duration) (*store.Run, error) {
	run := store.NewRun(parent.Method + suffix)
	run.Split = parent.Split
	run.Profile = parent.Profile
	run.Size = parent.Size
	run.Parent = parent.ID
	run.Elapsed = elapsed

	opts := evaluation.DefaultOptions(run.Size)
	opts.Seed = r.seed
	run.Report = evaluation.Evaluate(c, gt, opts)
	run.SetCollection(c)

	if err := r.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	r.log.WithRun(run.ID).Info("Rerank stored", "parent", parent.ID, "method", run.Method, "map", run.Report.MAP)
	return run, nil
}
