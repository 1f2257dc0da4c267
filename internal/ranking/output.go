package ranking

import (
	"fmt"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// OutputMode selects how a response is rendered to callers.
type OutputMode int

const (
	// OutputEval renders candidate ids with scores only.
	OutputEval OutputMode = iota
	// OutputView renders candidates with their payload fields.
	OutputView
)

// String returns the mode name.
func (m OutputMode) String() string {
	switch m {
	case OutputEval:
		return "eval"
	case OutputView:
		return "view"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ParseOutputMode parses "eval" or "view". Empty means eval.
func ParseOutputMode(s string) (OutputMode, error) {
	switch s {
	case "", "eval":
		return OutputEval, nil
	case "view":
		return OutputView, nil
	default:
		return 0, errors.ValidationError(fmt.Sprintf("unknown output mode %q", s))
	}
}

// Output is a rendered response. It is either an EvalOutput or a ViewOutput.
type Output interface {
	Mode() OutputMode
	isOutput()
}

// Scored is a candidate id with its score.
type Scored struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// EvalOutput carries what metrics need: ordered scored candidates.
type EvalOutput struct {
	Query string   `json:"query"`
	Items []Scored `json:"items"`
}

// Mode implements Output.
func (EvalOutput) Mode() OutputMode { return OutputEval }
func (EvalOutput) isOutput()        {}

// ViewOutput carries the full response for inspection.
type ViewOutput struct {
	Response *Response `json:"response"`
}

// Mode implements Output.
func (ViewOutput) Mode() OutputMode { return OutputView }
func (ViewOutput) isOutput()        {}

// Render converts a response into the requested output.
func Render(r *Response, mode OutputMode) (Output, error) {
	if r == nil {
		return nil, errors.NotFoundError("response")
	}
	switch mode {
	case OutputEval:
		items := make([]Scored, len(r.Items))
		for i, it := range r.Items {
			items[i] = Scored{ID: it.ID, Score: it.Score}
		}
		return EvalOutput{Query: r.Query, Items: items}, nil
	case OutputView:
		return ViewOutput{Response: r.Clone()}, nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported output mode %s", mode))
	}
}
