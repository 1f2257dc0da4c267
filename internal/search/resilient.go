package search

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/ranking"
)

// ResilientConfig configures pacing, retries and the circuit breaker placed
// in front of a backend.
type ResilientConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// RateLimit is the sustained request rate per second. Zero disables pacing.
	RateLimit float64
	Burst     int

	// MaxRetries bounds retries of a failed call. Zero disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultResilientConfig returns conservative defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:            "search-backend",
		Burst:           1,
		MaxRetries:      3,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Resilient wraps a Backend with client-side rate limiting, bounded
// exponential retries and a circuit breaker. Failures that survive the
// retries are returned as BACKEND_FAILURE errors.
type Resilient struct {
	next    Backend
	cfg     ResilientConfig
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[any]
	log     *logger.Logger
}

// NewResilient wraps next.
func NewResilient(next Backend, cfg ResilientConfig, log *logger.Logger) *Resilient {
	if log == nil {
		log = logger.Discard()
	}
	def := DefaultResilientConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Rejected requests and canceled callers say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err) || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Resilient{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cb:      cb,
		log:     log,
	}
}

// Search implements Searcher.
func (r *Resilient) Search(ctx context.Context, req Request) (*ranking.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	result, err := r.call(ctx, "search", func(ctx context.Context) (any, error) {
		return r.next.Search(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp, _ := result.(*ranking.Response)
	return resp, nil
}

// Roles implements AttributeSource.
func (r *Resilient) Roles(ctx context.Context, track, roleType string) ([]string, error) {
	result, err := r.call(ctx, "roles", func(ctx context.Context) (any, error) {
		return r.next.Roles(ctx, track, roleType)
	})
	if err != nil {
		return nil, err
	}
	roles, _ := result.([]string)
	return roles, nil
}

// Close closes the wrapped backend.
func (r *Resilient) Close() error {
	return r.next.Close()
}

// State returns the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.cb.State()
}

func (r *Resilient) call(ctx context.Context, operation string, fn func(context.Context) (any, error)) (any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.CodeTimeout, "waiting for backend rate limit", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialBackoff
	eb.MaxInterval = r.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	retries := r.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var result any
	op := func() error {
		start := time.Now()
		res, err := r.cb.Execute(func() (any, error) {
			return fn(ctx)
		})
		switch {
		case err == nil:
			metrics.ObserveBackend(operation, metrics.ResultSuccess, time.Since(start))
			result = res
			return nil
		case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.ObserveBackend(operation, metrics.ResultRejected, time.Since(start))
			return backoff.Permanent(err)
		default:
			metrics.ObserveBackend(operation, metrics.ResultFailure, time.Since(start))
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
	}

	notify := func(err error, wait time.Duration) {
		r.log.Debug("retrying backend call", "operation", operation, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		return nil, errors.BackendFailureError(operation, err).WithDetail("breaker", r.cb.State().String())
	}
	return result, nil
}

// retryable reports whether another attempt could succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !clientError(err)
}

// clientError reports errors caused by the request rather than the backend.
func clientError(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeValidation, errors.CodeInvalidRequest, errors.CodeNotFound:
		return true
	}
	return false
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
