package fusion

import "github.com/ricesearch/covereval/internal/ranking"

// WithinDistance returns the items of r whose score, read as a distance, is
// at most threshold, in response order.
func WithinDistance(r *ranking.Response, threshold float64) []ranking.Item {
	if r.Empty() {
		return nil
	}
	set := make([]ranking.Item, 0, r.Len())
	for _, item := range r.Items {
		if item.Score <= threshold {
			set = append(set, item)
		}
	}
	return set
}

// FuseDistances reorders primary with a distance-scored secondary response.
// Secondary candidates closer than threshold that also appear in primary are
// promoted in secondary order; no candidate is added to primary.
func FuseDistances(primary, secondary *ranking.Response, threshold float64) *ranking.Response {
	if primary.Empty() || secondary.Empty() {
		return primary
	}
	return Promote(primary, WithinDistance(secondary, threshold))
}
