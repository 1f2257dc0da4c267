package fusion

import (
	"sort"

	"github.com/ricesearch/covereval/internal/ranking"
)

const (
	// DefaultK is the RRF smoothing constant.
	// Higher values reduce the impact of rank position differences.
	DefaultK = 60
)

// RRFConfig configures Reciprocal Rank Fusion parameters.
type RRFConfig struct {
	// K is the smoothing constant (default: 60).
	K int

	// PrimaryWeight is the weight of the primary list (default: 0.5).
	PrimaryWeight float64

	// SecondaryWeight is the weight of the secondary list (default: 0.5).
	SecondaryWeight float64

	// Size caps the fused list. Zero keeps every candidate.
	Size int
}

// DefaultRRFConfig returns the default RRF configuration with equal weights.
func DefaultRRFConfig() RRFConfig {
	return RRFConfig{
		K:               DefaultK,
		PrimaryWeight:   0.5,
		SecondaryWeight: 0.5,
	}
}

type rrfEntry struct {
	item  ranking.Item
	first int
	score float64
}

// RRF merges two responses with weighted Reciprocal Rank Fusion.
//
// Formula: score = primaryWeight/(k + primaryRank) + secondaryWeight/(k + secondaryRank)
//
// Unlike Fuse, candidates found only by the secondary list are added.
// Items carry their fused score; ties keep first-seen order, primary first.
// The query itself is dropped.
func RRF(primary, secondary *ranking.Response, cfg RRFConfig) *ranking.Response {
	if cfg.K == 0 {
		cfg.K = DefaultK
	}
	if cfg.PrimaryWeight == 0 && cfg.SecondaryWeight == 0 {
		cfg.PrimaryWeight, cfg.SecondaryWeight = 0.5, 0.5
	}
	if primary == nil && secondary == nil {
		return nil
	}

	var query string
	if primary != nil {
		query = primary.Query
	} else {
		query = secondary.Query
	}

	entries := make(map[string]*rrfEntry)
	order := 0
	add := func(r *ranking.Response, weight float64) {
		for rank, item := range r.Head(0) {
			if item.ID == query {
				continue
			}
			e, ok := entries[item.ID]
			if !ok {
				e = &rrfEntry{item: item, first: order}
				entries[item.ID] = e
				order++
			}
			e.score += weight / float64(cfg.K+rank+1)
		}
	}
	add(primary, cfg.PrimaryWeight)
	add(secondary, cfg.SecondaryWeight)

	fused := make([]*rrfEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].first < fused[j].first
	})

	if cfg.Size > 0 && len(fused) > cfg.Size {
		fused = fused[:cfg.Size]
	}

	items := make([]ranking.Item, len(fused))
	for i, e := range fused {
		items[i] = e.item
		items[i].Score = e.score
	}
	return ranking.NewResponse(query, items...)
}
