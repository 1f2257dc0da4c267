package ranking

import (
	"fmt"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Record is the persisted shape of a response: index-aligned candidate and
// score sequences of equal length. A nil *Record stands for an absent
// response.
type Record struct {
	Candidates []string  `json:"candidates"`
	Scores     []float64 `json:"scores"`
}

// ToRecord converts a response to its persisted shape.
func ToRecord(r *Response) *Record {
	if r == nil {
		return nil
	}
	return &Record{Candidates: r.IDs(), Scores: r.Scores()}
}

// FromRecord converts a persisted record back to a response.
// Misaligned or duplicated candidates are internal faults.
func FromRecord(query string, rec *Record) (*Response, error) {
	if rec == nil {
		return nil, nil
	}
	if len(rec.Candidates) != len(rec.Scores) {
		return nil, errors.InternalError(
			fmt.Sprintf("record for %s has %d candidates and %d scores", query, len(rec.Candidates), len(rec.Scores)), nil)
	}
	items := make([]Item, len(rec.Candidates))
	for i, id := range rec.Candidates {
		items[i] = Item{ID: id, Score: rec.Scores[i]}
	}
	resp := NewResponse(query, items...)
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

// ToRecords converts a collection to its persisted shape.
func ToRecords(c Collection) map[string]*Record {
	out := make(map[string]*Record, len(c))
	for q, resp := range c {
		out[q] = ToRecord(resp)
	}
	return out
}

// FromRecords rebuilds a collection from persisted records.
func FromRecords(records map[string]*Record) (Collection, error) {
	out := make(Collection, len(records))
	for q, rec := range records {
		resp, err := FromRecord(q, rec)
		if err != nil {
			return nil, err
		}
		out[q] = resp
	}
	return out, nil
}
