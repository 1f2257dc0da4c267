package experiment

import (
	"context"

	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/search"
	"github.com/ricesearch/covereval/internal/search/fusion"
)

// RerankStats summarizes an offline rerank pass.
type RerankStats struct {
	Queries int `json:"queries"`
	// Reranked counts responses whose order changed.
	Reranked int `json:"reranked"`
	// Missing counts queries left unchanged for lack of secondary evidence
	// (no roles, no audio response).
	Missing int `json:"missing"`
	// Failures counts lookups that failed; the response is left unchanged.
	Failures int `json:"failures"`
}

// RerankCredits promotes, within the top-set of each stored response, the
// candidates credited in roleType by an artist also credited on the query.
// Queries without credited artists are left unchanged.
func RerankCredits(ctx context.Context, c ranking.Collection, attrs search.AttributeSource, roleType string, proximity float64, log *logger.Logger) (ranking.Collection, RerankStats, error) {
	var stats RerankStats
	if err := fusion.ValidateProximity(proximity); err != nil {
		return nil, stats, err
	}
	if roleType == "" {
		return nil, stats, errors.ValidationError("role type is required")
	}
	if log == nil {
		log = logger.Discard()
	}

	out := ranking.NewCollection()
	for _, q := range c.Queries() {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		resp := c[q]
		stats.Queries++
		out.Set(q, resp)
		if resp.Empty() {
			stats.Missing++
			continue
		}

		want, err := attrs.Roles(ctx, q, roleType)
		if err != nil {
			log.WithQuery(q).WithError(err).Warn("Role lookup failed")
			stats.Failures++
			continue
		}
		if len(want) == 0 {
			stats.Missing++
			continue
		}

		var lookupErr error
		reranked := fusion.RerankByAttributeSet(resp, want, func(id string) []string {
			if lookupErr != nil {
				return nil
			}
			roles, err := attrs.Roles(ctx, id, roleType)
			if err != nil {
				lookupErr = err
				return nil
			}
			return roles
		}, proximity)

		if lookupErr != nil {
			log.WithQuery(q).WithError(lookupErr).Warn("Candidate role lookup failed")
			stats.Failures++
			continue
		}
		if reranked != resp {
			stats.Reranked++
		}
		out.Set(q, reranked)
	}

	log.Info("Credits rerank completed",
		"queries", stats.Queries,
		"reranked", stats.Reranked,
		"missing", stats.Missing,
		"failures", stats.Failures,
	)
	return out, stats, nil
}

// RerankAudio reorders each text response with the audio response of the
// same query, whose scores are distances. Audio candidates at most threshold
// away that the text response also holds are promoted in audio order.
func RerankAudio(text, audio ranking.Collection, threshold float64) (ranking.Collection, RerankStats, error) {
	var stats RerankStats
	if err := fusion.ValidateProximity(threshold); err != nil {
		return nil, stats, err
	}

	out := ranking.NewCollection()
	for _, q := range text.Queries() {
		resp := text[q]
		stats.Queries++

		secondary := audio[q]
		if secondary.Empty() {
			stats.Missing++
			out.Set(q, resp)
			continue
		}

		fused := fusion.FuseDistances(resp, secondary, threshold)
		if fused != resp {
			stats.Reranked++
		}
		out.Set(q, fused)
	}
	return out, stats, nil
}

// Oracle promotes the ground-truth clique members of every response to the
// front, keeping response order. Evaluating the result gives the best
// metrics reachable by reordering the stored candidates.
func Oracle(c ranking.Collection, gt *groundtruth.Index) (ranking.Collection, RerankStats) {
	var stats RerankStats

	out := ranking.NewCollection()
	for _, q := range c.Queries() {
		resp := c[q]
		stats.Queries++
		if resp.Empty() {
			out.Set(q, resp)
			continue
		}

		promoted := fusion.PromoteRelevant(resp, gt.MemberSet(q))
		if promoted != resp {
			stats.Reranked++
		}
		out.Set(q, promoted)
	}
	return out, stats
}
