package evaluation

import (
	"github.com/ricesearch/covereval/internal/ranking"
)

// MissPenalty is the mean relevant position recorded for a response that
// contains no cover of the query.
const MissPenalty = 1_000_000

// Relevances returns the binary relevance vector of items against the
// clique members. The query itself is never counted as relevant.
func Relevances(query string, items []ranking.Item, members map[string]struct{}) []int {
	rel := make([]int, len(items))
	for i, item := range items {
		if item.ID == query {
			continue
		}
		if _, ok := members[item.ID]; ok {
			rel[i] = 1
		}
	}
	return rel
}

// AveragePrecision returns the average precision of a relevance vector for
// a clique of cliqueSize members including the query. The sum of
// precision@i over relevant positions is divided by cliqueSize-1, the number
// of covers that could be found. ok is false for singleton cliques, whose
// average precision is undefined.
func AveragePrecision(relevances []int, cliqueSize int) (ap float64, ok bool) {
	if cliqueSize <= 1 {
		return 0, false
	}

	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r > 0 {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	return sumPrecision / float64(cliqueSize-1), true
}

// MeanRelevantPosition returns the mean 0-indexed position of the relevant
// candidates, or MissPenalty when there are none.
func MeanRelevantPosition(relevances []int) float64 {
	sum, n := 0, 0
	for i, r := range relevances {
		if r > 0 {
			sum += i
			n++
		}
	}
	if n == 0 {
		return MissPenalty
	}
	return float64(sum) / float64(n)
}

// FirstRelevantRank returns the 1-based rank of the first relevant
// candidate. ok is false when there is none.
func FirstRelevantRank(relevances []int) (rank int, ok bool) {
	for i, r := range relevances {
		if r > 0 {
			return i + 1, true
		}
	}
	return 0, false
}

// Detected counts the relevant candidates.
func Detected(relevances []int) int {
	n := 0
	for _, r := range relevances {
		if r > 0 {
			n++
		}
	}
	return n
}

// CoveragePercentage returns 100 * detected / cliqueSize.
func CoveragePercentage(detected, cliqueSize int) float64 {
	if cliqueSize == 0 {
		return 0
	}
	return 100 * float64(detected) / float64(cliqueSize)
}

// Precision calculates Precision at K
func Precision(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}

	relevant := 0
	for i := 0; i < k; i++ {
		if relevances[i] > 0 {
			relevant++
		}
	}

	return float64(relevant) / float64(k)
}

// Recall calculates Recall at K against the number of covers that exist.
func Recall(relevances []int, k int, possible int) float64 {
	if possible <= 0 {
		return 0
	}
	if k > len(relevances) {
		k = len(relevances)
	}

	relevantInK := 0
	for i := 0; i < k; i++ {
		if relevances[i] > 0 {
			relevantInK++
		}
	}

	return float64(relevantInK) / float64(possible)
}

// ReciprocalRank calculates the reciprocal rank of the first relevant item.
func ReciprocalRank(relevances []int) float64 {
	if rank, ok := FirstRelevantRank(relevances); ok {
		return 1.0 / float64(rank)
	}
	return 0
}
