package evaluation

import (
	"encoding/json"
	"net/http"

	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
)

// maxRequestBody bounds the size of a metrics request.
const maxRequestBody = 64 << 20

// Handler provides HTTP handlers for evaluation.
type Handler struct{}

// NewHandler creates a new evaluation handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/metrics", h.handleMetrics)
}

// MetricsRequest carries a ground-truth table and a stored collection.
type MetricsRequest struct {
	GroundTruth []groundtruth.Row          `json:"ground_truth"`
	Results     map[string]*ranking.Record `json:"results"`
	Size        int                        `json:"size"`
	PerQuery    bool                       `json:"per_query"`
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		errors.WriteError(w, errors.Wrap(errors.CodeInvalidRequest, "invalid request body", err))
		return
	}

	if req.Size < 0 {
		errors.WriteError(w, errors.ValidationError("size must be >= 0"))
		return
	}
	if len(req.Results) == 0 {
		errors.WriteError(w, errors.ValidationError("results are required"))
		return
	}

	gt, err := groundtruth.Build(req.GroundTruth)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	collection, err := ranking.FromRecords(req.Results)
	if err != nil {
		errors.WriteError(w, errors.Wrap(errors.CodeInvalidRequest, "invalid results", err))
		return
	}

	opts := DefaultOptions(req.Size)
	opts.PerQuery = req.PerQuery
	report := Evaluate(collection, gt, opts)

	w.Header().Set("Content-Type", "application/json")
	// Headers are already sent, nothing left to report.
	_ = json.NewEncoder(w).Encode(report)
}
