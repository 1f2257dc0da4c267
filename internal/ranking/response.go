// Package ranking defines ranked candidate lists and the per-run collections
// that fusion and evaluation operate on.
package ranking

import (
	"fmt"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Item is one candidate track in a ranked response.
type Item struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`

	// Fields holds payload attributes returned with the candidate
	// (e.g. artist_id). Only populated by searches that ask for them.
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns a payload attribute of the candidate.
func (i Item) Field(name string) (string, bool) {
	v, ok := i.Fields[name]
	return v, ok
}

// Response is the ordered candidate list returned for one query by one
// evidence source. Item order is the relevance order; it is not necessarily
// sorted by Score.
type Response struct {
	Query string `json:"query"`
	Items []Item `json:"items"`
}

// NewResponse creates a response for query.
func NewResponse(query string, items ...Item) *Response {
	if items == nil {
		items = []Item{}
	}
	return &Response{Query: query, Items: items}
}

// Len returns the number of candidates. A nil response has none.
func (r *Response) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// Empty reports whether the response has no candidates.
func (r *Response) Empty() bool {
	return r.Len() == 0
}

// IDs returns candidate ids in response order.
func (r *Response) IDs() []string {
	ids := make([]string, r.Len())
	for i := 0; i < r.Len(); i++ {
		ids[i] = r.Items[i].ID
	}
	return ids
}

// Scores returns candidate scores in response order.
func (r *Response) Scores() []float64 {
	scores := make([]float64, r.Len())
	for i := 0; i < r.Len(); i++ {
		scores[i] = r.Items[i].Score
	}
	return scores
}

// TopScore returns the score of the first item.
func (r *Response) TopScore() (float64, bool) {
	if r.Empty() {
		return 0, false
	}
	return r.Items[0].Score, true
}

// Head returns the first n items, or all items when n <= 0 or n exceeds
// the response length. The returned slice aliases the response.
func (r *Response) Head(n int) []Item {
	if r == nil {
		return nil
	}
	if n <= 0 || n >= len(r.Items) {
		return r.Items
	}
	return r.Items[:n]
}

// Clone returns a deep copy of r. Items and their Fields maps are not
// shared with r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	items := make([]Item, len(r.Items))
	for i, item := range r.Items {
		if item.Fields != nil {
			fields := make(map[string]string, len(item.Fields))
			for k, v := range item.Fields {
				fields[k] = v
			}
			item.Fields = fields
		}
		items[i] = item
	}
	return &Response{Query: r.Query, Items: items}
}

// WithItems returns a response for the same query carrying items.
func (r *Response) WithItems(items []Item) *Response {
	return &Response{Query: r.Query, Items: items}
}

// Validate checks that candidate ids are non-empty and unique.
func (r *Response) Validate() error {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i, item := range r.Items {
		if item.ID == "" {
			return errors.InternalError(fmt.Sprintf("response for %s has an empty candidate id at position %d", r.Query, i), nil)
		}
		if _, dup := seen[item.ID]; dup {
			return errors.InternalError(fmt.Sprintf("response for %s lists candidate %s twice", r.Query, item.ID), nil).
				WithDetail("query", r.Query).
				WithDetail("candidate", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
