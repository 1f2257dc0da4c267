package runner

import (
	"context"
	"time"

	"github.com/ricesearch/covereval/internal/bus"
	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/store"
)

// Deps are the collaborators of an Evaluator. Store, History and Bus are
// optional.
type Deps struct {
	Datasets DatasetLoader
	Backends BackendFactory

	// Settings are the base experiment settings. Profile and size come
	// from each Spec.
	Settings experiment.Settings

	// Seed seeds the bootstrap confidence interval of every report.
	Seed int64

	Store   *store.ResultStore
	History metrics.History
	Bus     bus.Bus
	Topic   string

	Log *logger.Logger
}

// Evaluator runs one spec end to end: ground truth, searches, metrics,
// persistence and notification.
type Evaluator struct {
	deps Deps
	log  *logger.Logger
}

var _ Executor = (*Evaluator)(nil)

// NewEvaluator creates an evaluator.
func NewEvaluator(deps Deps) (*Evaluator, error) {
	if deps.Datasets == nil {
		return nil, errors.ValidationError("dataset loader is required")
	}
	if deps.Backends == nil {
		return nil, errors.ValidationError("backend factory is required")
	}
	if deps.Bus != nil && deps.Topic == "" {
		return nil, errors.ValidationError("bus topic is required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Evaluator{deps: deps, log: log}, nil
}

// Execute runs spec. The returned run is non-nil once the spec is valid,
// and carries the failure when err is set.
func (e *Evaluator) Execute(ctx context.Context, spec Spec) (*store.Run, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	run := store.NewRun(spec.Method.String())
	run.Split = spec.Split.String()
	run.Profile = spec.Profile.String()
	run.Size = spec.Size

	ctx = logger.ContextWithRunID(ctx, run.ID)
	log := e.log.WithRun(run.ID).WithMethod(run.Method)

	start := time.Now()
	err := e.execute(ctx, spec, run, log)
	run.Elapsed = time.Since(start)
	metrics.ObserveRun(run.Method, err != nil, run.Elapsed)

	if err != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
		log.WithError(err).Error("Run failed", "run", spec.Name())
	} else {
		log.Info("Run completed",
			"run", spec.Name(),
			"map", run.Report.MAP,
			"evaluated", run.Report.Evaluated,
			"elapsed", run.Elapsed,
		)
	}

	// Persistence and notification use a fresh context so a canceled run
	// is still recorded.
	bg := context.WithoutCancel(ctx)
	e.save(bg, run, log)
	if err == nil {
		e.record(bg, run, log)
	}
	e.publish(bg, run, log)

	return run, err
}

func (e *Evaluator) execute(ctx context.Context, spec Spec, run *store.Run, log *logger.Logger) error {
	rows, err := e.deps.Datasets(spec.Split)
	if err != nil {
		return err
	}
	gt, err := groundtruth.BuildFromCSV(rows)
	if err != nil {
		return err
	}

	backend, err := e.deps.Backends(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			log.Warn("Failed to close backend", "error", cerr)
		}
	}()

	settings := e.deps.Settings
	settings.Profile = spec.Profile
	settings.Size = spec.Size

	exp, err := experiment.New(backend, gt, settings, e.log)
	if err != nil {
		return err
	}
	res, err := exp.Run(ctx, spec.Method)
	if err != nil {
		return err
	}

	opts := evaluation.DefaultOptions(spec.Size)
	opts.Seed = e.deps.Seed
	report := evaluation.Evaluate(res.Collection, gt, opts)
	report.BackendFailures = res.BackendFailures
	report.SecondaryFailures = res.SecondaryFailures

	run.Report = report
	run.SetCollection(res.Collection)

	metrics.RunMAP.WithLabelValues(run.Method, run.Profile, settings.Mode.String()).Set(report.MAP)
	return nil
}

func (e *Evaluator) save(ctx context.Context, run *store.Run, log *logger.Logger) {
	if e.deps.Store == nil {
		return
	}
	if err := e.deps.Store.SaveRun(ctx, run); err != nil {
		log.WithError(err).Error("Failed to save run")
	}
}

func (e *Evaluator) record(ctx context.Context, run *store.Run, log *logger.Logger) {
	if e.deps.History == nil {
		return
	}
	series := metrics.SeriesName(run.Method, run.Profile, e.deps.Settings.Mode.String())
	dp := metrics.DataPoint{Timestamp: run.CreatedAt, RunID: run.ID, Value: run.Report.MAP}
	if err := e.deps.History.Record(ctx, series, dp); err != nil {
		log.WithError(err).Warn("Failed to record run history", "series", series)
	}
}

func (e *Evaluator) publish(ctx context.Context, run *store.Run, log *logger.Logger) {
	if e.deps.Bus == nil {
		return
	}
	if err := e.deps.Bus.Publish(ctx, e.deps.Topic, bus.RunEvent(Payload(run))); err != nil {
		log.WithError(err).Warn("Failed to publish run event")
	}
}

// Payload summarizes run for its bus event.
func Payload(run *store.Run) bus.RunPayload {
	p := bus.RunPayload{
		RunID:   run.ID,
		Method:  run.Method,
		Split:   run.Split,
		Profile: run.Profile,
		Size:    run.Size,
		Error:   run.Error,
		Elapsed: run.Elapsed.Seconds(),
	}
	if run.Report != nil {
		p.MAP = run.Report.MAP
		p.Queries = run.Report.Queries
	}
	return p
}
