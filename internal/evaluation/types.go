package evaluation

// QueryStatus classifies how a query entered the aggregates.
type QueryStatus string

const (
	// StatusEvaluated marks a query with a list response and at least one cover.
	StatusEvaluated QueryStatus = "evaluated"
	// StatusNoResponse marks a query whose response is absent.
	StatusNoResponse QueryStatus = "no_response"
	// StatusSingleton marks a query whose clique has no other member.
	StatusSingleton QueryStatus = "singleton"
	// StatusUnknown marks a query missing from the ground truth.
	StatusUnknown QueryStatus = "unknown"
)

// QueryResult contains metrics for a single query.
type QueryResult struct {
	Query      string      `json:"query"`
	Clique     string      `json:"clique,omitempty"`
	CliqueSize int         `json:"clique_size"`
	Status     QueryStatus `json:"status"`
	Returned   int         `json:"returned"`

	AP           float64 `json:"ap"`
	RR           float64 `json:"rr"`
	MeanPosition float64 `json:"mean_position"`
	FirstRank    int     `json:"first_rank,omitempty"`
	Detected     int     `json:"detected"`
	Percentage   float64 `json:"percentage"`
}

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// Report aggregates metrics across the queries of one collection.
type Report struct {
	Size int `json:"size"`

	Queries   int `json:"queries"`
	Evaluated int `json:"evaluated"`

	MAP       float64            `json:"map"`
	MAPStdDev float64            `json:"map_stddev"`
	MAPCI     ConfidenceInterval `json:"map_ci"`
	MAPSample int                `json:"map_sample"`

	AverageRank        float64 `json:"average_rank"`
	MeanRankFirstCover float64 `json:"mean_rank_first_cover"`
	FirstCoverQueries  int     `json:"first_cover_queries"`
	CoversIdentified   int     `json:"covers_identified"`
	MeanCoverage       float64 `json:"mean_coverage"`

	MRR           float64         `json:"mrr"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanRecall    map[int]float64 `json:"mean_recall"`

	NoResponseQueries int `json:"no_response_queries"`
	EmptyResponses    int `json:"empty_responses"`
	SingletonQueries  int `json:"singleton_queries"`
	UnknownQueries    int `json:"unknown_queries"`
	BackendFailures   int `json:"backend_failures"`
	SecondaryFailures int `json:"secondary_failures"`

	// EmptySample is set when no query contributed to MAP.
	EmptySample bool `json:"empty_sample,omitempty"`

	PerQuery []QueryResult `json:"per_query,omitempty"`
}
