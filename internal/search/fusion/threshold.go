// Package fusion merges and reorders ranked responses.
//
// All functions are pure: they never modify their inputs, never re-sort by
// score, and break ties by original list order.
package fusion

import (
	"fmt"
	"math"

	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
)

// Default proximities used by the evaluation methods.
const (
	DefaultLyricsProximity  = 0.5
	DefaultFieldProximity   = 1.0
	DefaultCreditsProximity = 0.1
	DefaultAudioThreshold   = 0.1
)

// ValidateProximity rejects negative or non-finite proximities.
func ValidateProximity(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return errors.ValidationError(fmt.Sprintf("proximity must be a finite non-negative number, got %v", p))
	}
	return nil
}

// TopSet returns the items of r whose score is within proximity of the
// first item's score, in response order.
func TopSet(r *ranking.Response, proximity float64) []ranking.Item {
	top, ok := r.TopScore()
	if !ok {
		return nil
	}
	set := make([]ranking.Item, 0, r.Len())
	for _, item := range r.Items {
		if top-item.Score <= proximity {
			set = append(set, item)
		}
	}
	return set
}

// Fuse reorders primary so that candidates also present in the top-set of
// secondary come first, in secondary order, followed by the remaining
// primary candidates in primary order. Emitted items keep their primary
// scores. If secondary is empty or shares no top-set candidate with
// primary, primary is returned unchanged.
func Fuse(primary, secondary *ranking.Response, proximity float64) *ranking.Response {
	if primary.Empty() || secondary.Empty() {
		return primary
	}
	return Promote(primary, TopSet(secondary, proximity))
}

// Promote moves the primary candidates listed in order to the front of
// primary, following the order of the list. Candidates of order that are not
// in primary, and the query itself, are ignored.
func Promote(primary *ranking.Response, order []ranking.Item) *ranking.Response {
	if primary.Empty() || len(order) == 0 {
		return primary
	}

	pos := make(map[string]int, primary.Len())
	for i, item := range primary.Items {
		if _, dup := pos[item.ID]; !dup {
			pos[item.ID] = i
		}
	}

	promoted := make([]int, 0, len(order))
	taken := make(map[int]struct{}, len(order))
	for _, item := range order {
		if item.ID == primary.Query {
			continue
		}
		i, ok := pos[item.ID]
		if !ok {
			continue
		}
		if _, dup := taken[i]; dup {
			continue
		}
		taken[i] = struct{}{}
		promoted = append(promoted, i)
	}

	if len(promoted) == 0 {
		return primary
	}

	fused := make([]ranking.Item, 0, primary.Len())
	for _, i := range promoted {
		fused = append(fused, primary.Items[i])
	}
	for i, item := range primary.Items {
		if _, ok := taken[i]; !ok {
			fused = append(fused, item)
		}
	}
	return primary.WithItems(fused)
}
