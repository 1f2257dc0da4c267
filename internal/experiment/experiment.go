package experiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/search"
	"github.com/ricesearch/covereval/internal/search/fusion"
)

// DefaultRoleType is the credited role compared by the credits methods.
const DefaultRoleType = "Composer"

// Backend is what an experiment needs from the search layer.
type Backend interface {
	search.Searcher
	search.AttributeSource
}

// Settings parameterizes how methods issue and combine searches.
type Settings struct {
	Profile          Profile
	Mode             search.QueryMode
	Size             int
	LyricsProximity  float64
	FieldProximity   float64
	CreditsProximity float64
	RoleType         string
	RRF              fusion.RRFConfig
}

// DefaultSettings returns the settings used by the published experiments.
func DefaultSettings() Settings {
	return Settings{
		Profile:          ProfileMSD,
		Mode:             search.ModeSimpleQuery,
		Size:             search.DefaultSize,
		LyricsProximity:  fusion.DefaultLyricsProximity,
		FieldProximity:   fusion.DefaultFieldProximity,
		CreditsProximity: fusion.DefaultCreditsProximity,
		RoleType:         DefaultRoleType,
		RRF:              fusion.DefaultRRFConfig(),
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	var errs []string
	if s.Size <= 0 {
		errs = append(errs, fmt.Sprintf("size must be positive, got %d", s.Size))
	}
	for _, p := range []float64{s.LyricsProximity, s.FieldProximity, s.CreditsProximity} {
		if err := fusion.ValidateProximity(p); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if strings.TrimSpace(s.RoleType) == "" {
		errs = append(errs, "role type is required")
	}
	if len(errs) > 0 {
		return errors.ValidationError("invalid experiment settings: " + strings.Join(errs, "; "))
	}
	return nil
}

// Result is the outcome of running one method over every query.
type Result struct {
	Method     Method
	Collection ranking.Collection

	// BackendFailures counts queries recorded as absent because the
	// backend failed.
	BackendFailures int

	// NoEvidence counts queries whose primary search had no evidence.
	NoEvidence int

	// SecondaryFailures counts queries whose secondary search failed and
	// whose primary response was kept unfused.
	SecondaryFailures int

	Elapsed time.Duration
}

// Experiment runs methods for the queries of one ground-truth index.
type Experiment struct {
	backend  Backend
	gt       *groundtruth.Index
	settings Settings
	log      *logger.Logger
}

// New creates an experiment.
func New(backend Backend, gt *groundtruth.Index, settings Settings, log *logger.Logger) (*Experiment, error) {
	if backend == nil {
		return nil, errors.ValidationError("search backend is required")
	}
	if gt == nil {
		return nil, errors.ValidationError("ground truth is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Experiment{
		backend:  backend,
		gt:       gt,
		settings: settings,
		log:      log,
	}, nil
}

// Settings returns the experiment settings.
func (e *Experiment) Settings() Settings {
	return e.settings
}

// Run executes method for every query of the ground truth, sequentially.
// Backend failures are logged and recorded as absent responses. Invalid
// requests and context cancellation fail the run.
func (e *Experiment) Run(ctx context.Context, method Method) (*Result, error) {
	if method < 0 || int(method) >= len(methodNames) {
		return nil, errors.ValidationError(fmt.Sprintf("unknown method %d", int(method)))
	}

	log := e.log.WithContext(ctx).WithMethod(method.String())
	start := time.Now()

	queries := e.gt.Queries()
	result := &Result{
		Method:     method,
		Collection: ranking.NewCollection(),
	}

	log.Info("Running experiment",
		"queries", len(queries),
		"size", e.settings.Size,
		"profile", e.settings.Profile.String(),
		"filters", e.settings.Profile.Filters().String(),
	)

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, secondaryFailed, err := e.query(ctx, method, q)
		if secondaryFailed {
			result.SecondaryFailures++
		}
		switch {
		case err == nil:
			result.Collection.Set(q, resp)
			if resp == nil {
				result.NoEvidence++
				metrics.QueryOutcomes.WithLabelValues(method.String(), metrics.OutcomeAbsent).Inc()
			} else {
				metrics.QueryOutcomes.WithLabelValues(method.String(), metrics.OutcomePresent).Inc()
			}
		case errors.IsValidation(err) || ctx.Err() != nil:
			return nil, err
		default:
			log.WithQuery(q).WithError(err).Warn("Search failed, recording query as absent")
			result.Collection.Set(q, nil)
			result.BackendFailures++
			metrics.QueryOutcomes.WithLabelValues(method.String(), metrics.OutcomeFailed).Inc()
		}

		log.Debug("Query done", "index", i, "query_id", q, "returned", resp.Len())
	}

	result.Elapsed = time.Since(start)
	log.Info("Experiment completed",
		"elapsed", result.Elapsed,
		"no_evidence", result.NoEvidence,
		"backend_failures", result.BackendFailures,
		"secondary_failures", result.SecondaryFailures,
	)

	return result, nil
}

// Query runs method for a single query track. A nil response means the
// query has no evidence for the method's primary source. A backend failure
// of the secondary search leaves the primary response unfused.
func (e *Experiment) Query(ctx context.Context, method Method, track string) (*ranking.Response, error) {
	resp, _, err := e.query(ctx, method, track)
	return resp, err
}

// query is Query that also reports whether the secondary search failed.
func (e *Experiment) query(ctx context.Context, method Method, track string) (*ranking.Response, bool, error) {
	primary, err := e.search(ctx, track, method.primary(), method == MethodTitleArtistRerank)
	if err != nil {
		return nil, false, err
	}

	if method == MethodTitleArtistRerank {
		artist, ok := e.gt.Attribute(track, groundtruth.ColumnArtistID)
		if !ok || primary == nil {
			return primary, false, nil
		}
		return fusion.RerankByField(primary, groundtruth.ColumnArtistID, artist, e.settings.FieldProximity), false, nil
	}

	source, ok := method.secondary()
	if !ok {
		return primary, false, nil
	}

	if method != MethodTitleMXMLyricsRRF && primary.Empty() {
		return primary, false, nil
	}

	var secondaryFailed bool
	secondary, err := e.search(ctx, track, source, false)
	if err != nil {
		if errors.IsValidation(err) || ctx.Err() != nil {
			return nil, false, err
		}
		e.log.WithContext(ctx).WithMethod(method.String()).WithQuery(track).WithError(err).
			Warn("Secondary search failed, keeping primary response", "source", source.String())
		metrics.SecondaryFallbacks.WithLabelValues(method.String(), source.String()).Inc()
		secondary, secondaryFailed = nil, true
	}

	switch method {
	case MethodTitleMXMLyricsRRF:
		cfg := e.settings.RRF
		cfg.Size = e.settings.Size
		return fusion.RRF(primary, secondary, cfg), secondaryFailed, nil
	case MethodTitleCredits:
		return fusion.Fuse(primary, secondary, e.settings.CreditsProximity), secondaryFailed, nil
	default:
		return fusion.Fuse(primary, secondary, e.settings.LyricsProximity), secondaryFailed, nil
	}
}

// search issues one request for track over source.
func (e *Experiment) search(ctx context.Context, track string, source search.EvidenceSource, withArtist bool) (*ranking.Response, error) {
	req := search.NewRequest(track, source).
		WithSize(e.settings.Size).
		WithFilters(e.settings.Profile.Filters())

	if source == search.SourceTitle || source == search.SourceCleanTitle || source == search.SourceCredits {
		if title := e.gt.Title(track); title != "" {
			req = req.WithTitle(title).WithMode(e.settings.Mode)
		}
	}

	if source == search.SourceCredits {
		roles, err := e.backend.Roles(ctx, track, e.settings.RoleType)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, nil
		}
		req = req.WithRoles(e.settings.RoleType, roles)
	}

	if withArtist {
		req = req.WithFields(groundtruth.ColumnArtistID)
	}

	return e.backend.Search(ctx, req)
}
