package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/store"
)

// Executor performs one run.
type Executor interface {
	Execute(ctx context.Context, spec Spec) (*store.Run, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, spec Spec) (*store.Run, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, spec Spec) (*store.Run, error) {
	return f(ctx, spec)
}

// Outcome is the result of one run. Run may be set even when Err is, for a
// run that failed after it was created.
type Outcome struct {
	Spec Spec
	Run  *store.Run
	Err  error
}

// Pool runs specs on a bounded number of workers.
type Pool struct {
	workers int
	exec    Executor
	log     *logger.Logger
}

// NewPool creates a pool. workers <= 0 uses one worker per CPU.
func NewPool(workers int, exec Executor, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{workers: workers, exec: exec, log: log}
}

// Workers returns the worker limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes every spec and returns their outcomes in input order. A
// failing run does not cancel its siblings; the returned error joins every
// run failure.
func (p *Pool) Run(ctx context.Context, specs []Spec) ([]Outcome, error) {
	outcomes := make([]Outcome, len(specs))
	if len(specs) == 0 {
		return outcomes, nil
	}

	p.log.Info("Starting runs", "runs", len(specs), "workers", p.workers)

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, spec := range specs {
		g.Go(func() error {
			outcomes[i] = p.runOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait() // workers report through outcomes

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Spec.Name(), o.Err))
		}
	}

	p.log.Info("Runs finished", "runs", len(specs), "failed", len(errs))
	return outcomes, stderrors.Join(errs...)
}

func (p *Pool) runOne(ctx context.Context, spec Spec) (out Outcome) {
	out.Spec = spec
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	out.Run, out.Err = p.exec.Execute(ctx, spec)
	return out
}
