// Package evaluation scores ranked responses against clique ground truth.
package evaluation

import (
	"sort"

	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/ranking"
)

// Options tunes Evaluate.
type Options struct {
	// Size truncates responses before average precision, precision, recall
	// and coverage are computed. Zero uses full responses.
	Size int

	// Ks are the precision and recall cutoffs. Defaults to 1, 10 and Size.
	Ks []int

	// Bootstrap settings for the MAP confidence interval.
	BootstrapIterations int
	Confidence          float64
	Seed                int64

	// PerQuery keeps the per-query results in the report.
	PerQuery bool
}

// DefaultOptions returns the options used by evaluation runs.
func DefaultOptions(size int) Options {
	return Options{
		Size:                size,
		BootstrapIterations: DefaultBootstrapIterations,
		Confidence:          0.95,
		Seed:                42,
	}
}

func (o Options) cutoffs() []int {
	if len(o.Ks) > 0 {
		return o.Ks
	}
	ks := []int{1, 10}
	if o.Size > 0 && o.Size != 1 && o.Size != 10 {
		ks = append(ks, o.Size)
	}
	sort.Ints(ks)
	return ks
}

// EvaluateQuery scores one query. resp may be nil for an absent response.
func EvaluateQuery(gt *groundtruth.Index, query string, resp *ranking.Response, size int) QueryResult {
	res := QueryResult{Query: query, Returned: resp.Len()}

	clique, ok := gt.CliqueOf(query)
	if !ok {
		res.Status = StatusUnknown
		return res
	}
	members := gt.MembersOf(clique)
	res.Clique = clique
	res.CliqueSize = len(members)

	switch {
	case len(members) <= 1:
		res.Status = StatusSingleton
		return res
	case resp == nil:
		res.Status = StatusNoResponse
		return res
	}
	res.Status = StatusEvaluated

	memberSet := gt.MemberSet(query)

	pruned := Relevances(query, resp.Head(size), memberSet)
	res.AP, _ = AveragePrecision(pruned, res.CliqueSize)
	res.Detected = Detected(pruned)
	res.Percentage = CoveragePercentage(res.Detected, res.CliqueSize)
	res.RR = ReciprocalRank(pruned)

	full := Relevances(query, resp.Items, memberSet)
	res.MeanPosition = MeanRelevantPosition(full)
	res.FirstRank, _ = FirstRelevantRank(full)

	return res
}

// Evaluate scores every query of c against gt.
//
// Queries whose clique has a single member are excluded from every
// aggregate and counted in SingletonQueries. Absent responses contribute
// zero to MAP and are otherwise excluded; they are counted in
// NoResponseQueries. Queries unknown to gt are counted and skipped.
func Evaluate(c ranking.Collection, gt *groundtruth.Index, opts Options) *Report {
	ks := opts.cutoffs()
	report := &Report{
		Size:          opts.Size,
		Queries:       len(c),
		MeanPrecision: make(map[int]float64, len(ks)),
		MeanRecall:    make(map[int]float64, len(ks)),
	}

	var (
		aps, positions, firstRanks, percentages, rrs []float64
	)
	precision := make(map[int][]float64, len(ks))
	recall := make(map[int][]float64, len(ks))

	for _, q := range c.Queries() {
		resp := c[q]
		res := EvaluateQuery(gt, q, resp, opts.Size)
		if opts.PerQuery {
			report.PerQuery = append(report.PerQuery, res)
		}

		switch res.Status {
		case StatusUnknown:
			report.UnknownQueries++
			continue
		case StatusSingleton:
			report.SingletonQueries++
			if resp == nil {
				report.NoResponseQueries++
			}
			continue
		case StatusNoResponse:
			report.NoResponseQueries++
			aps = append(aps, 0)
			continue
		}

		report.Evaluated++
		if resp.Empty() {
			report.EmptyResponses++
		}

		aps = append(aps, res.AP)
		positions = append(positions, res.MeanPosition)
		if res.FirstRank > 0 {
			firstRanks = append(firstRanks, float64(res.FirstRank))
		}
		percentages = append(percentages, res.Percentage)
		rrs = append(rrs, res.RR)
		report.CoversIdentified += res.Detected

		rel := Relevances(q, resp.Head(opts.Size), gt.MemberSet(q))
		for _, k := range ks {
			precision[k] = append(precision[k], Precision(rel, k))
			recall[k] = append(recall[k], Recall(rel, k, res.CliqueSize-1))
		}
	}

	report.MAP = mean(aps)
	report.MAPSample = len(aps)
	report.MAPStdDev = stdDev(aps)
	report.MAPCI = BootstrapCI(aps, opts.Confidence, opts.BootstrapIterations, opts.Seed)
	report.EmptySample = len(aps) == 0

	report.AverageRank = mean(positions)
	report.MeanRankFirstCover = mean(firstRanks)
	report.FirstCoverQueries = len(firstRanks)
	report.MeanCoverage = mean(percentages)
	report.MRR = mean(rrs)
	for _, k := range ks {
		report.MeanPrecision[k] = mean(precision[k])
		report.MeanRecall[k] = mean(recall[k])
	}

	return report
}

// MeanAveragePrecision returns the MAP of c over the first size candidates.
func MeanAveragePrecision(c ranking.Collection, gt *groundtruth.Index, size int) float64 {
	return Evaluate(c, gt, Options{Size: size}).MAP
}

// AverageRank returns the mean over list responses of the mean position of
// their covers, with MissPenalty for responses without any cover.
func AverageRank(c ranking.Collection, gt *groundtruth.Index) float64 {
	return Evaluate(c, gt, Options{}).AverageRank
}

// MeanRankFirstCover returns the mean 1-based rank of the first cover over
// the responses that contain one.
func MeanRankFirstCover(c ranking.Collection, gt *groundtruth.Index) float64 {
	return Evaluate(c, gt, Options{}).MeanRankFirstCover
}

// CoverageSummary reports how many covers were identified.
type CoverageSummary struct {
	CoversIdentified int     `json:"covers_identified"`
	MeanPercentage   float64 `json:"mean_percentage"`
}

// Coverage returns the covers identified within the first size candidates.
func Coverage(c ranking.Collection, gt *groundtruth.Index, size int) CoverageSummary {
	r := Evaluate(c, gt, Options{Size: size})
	return CoverageSummary{
		CoversIdentified: r.CoversIdentified,
		MeanPercentage:   r.MeanCoverage,
	}
}
