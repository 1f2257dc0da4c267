package fusion

import (
	"math"

	"github.com/ricesearch/covereval/internal/ranking"
)

// Match decides whether a candidate should be promoted.
type Match func(ranking.Item) bool

// PromoteMatching moves the candidates of r that satisfy match and score
// within proximity of the top score to the front, keeping relative order in
// both groups. The query itself is never promoted. An empty response yields
// an empty response and no match leaves r unchanged.
func PromoteMatching(r *ranking.Response, proximity float64, match Match) *ranking.Response {
	if r == nil {
		return nil
	}
	if r.Empty() {
		return r.WithItems([]ranking.Item{})
	}
	top := r.Items[0].Score

	var head, tail []ranking.Item
	for _, item := range r.Items {
		if item.ID != r.Query && top-item.Score <= proximity && match(item) {
			head = append(head, item)
		} else {
			tail = append(tail, item)
		}
	}
	if len(head) == 0 {
		return r
	}
	return r.WithItems(append(head, tail...))
}

// RerankByField promotes candidates whose payload field equals value and
// whose score is within proximity of the top score.
func RerankByField(r *ranking.Response, field, value string, proximity float64) *ranking.Response {
	return PromoteMatching(r, proximity, func(item ranking.Item) bool {
		v, ok := item.Field(field)
		return ok && v == value
	})
}

// RerankByAttributeSet promotes candidates within proximity of the top score
// whose attribute values, as reported by lookup, intersect want. An empty
// want leaves r unchanged.
func RerankByAttributeSet(r *ranking.Response, want []string, lookup func(id string) []string, proximity float64) *ranking.Response {
	if len(want) == 0 {
		return r
	}
	wanted := make(map[string]struct{}, len(want))
	for _, w := range want {
		wanted[w] = struct{}{}
	}
	return PromoteMatching(r, proximity, func(item ranking.Item) bool {
		for _, v := range lookup(item.ID) {
			if _, ok := wanted[v]; ok {
				return true
			}
		}
		return false
	})
}

// PromoteRelevant moves every candidate in relevant to the front regardless
// of score. Applied with the ground-truth clique it yields the best ordering
// reachable from a response.
func PromoteRelevant(r *ranking.Response, relevant map[string]struct{}) *ranking.Response {
	return PromoteMatching(r, math.Inf(1), func(item ranking.Item) bool {
		_, ok := relevant[item.ID]
		return ok
	})
}
