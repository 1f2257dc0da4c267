package ranking

import "sort"

// Collection maps query track ids to their responses for one run.
// A query mapped to nil is absent: no evidence was available for it, which
// is distinct from a present response with no candidates.
type Collection map[string]*Response

// NewCollection creates an empty collection.
func NewCollection() Collection {
	return make(Collection)
}

// Set records the response for query. A nil response marks it absent.
func (c Collection) Set(query string, resp *Response) {
	c[query] = resp
}

// Absent reports whether query was evaluated but produced no response.
func (c Collection) Absent(query string) bool {
	resp, ok := c[query]
	return ok && resp == nil
}

// Queries returns the query ids in sorted order.
func (c Collection) Queries() []string {
	queries := make([]string, 0, len(c))
	for q := range c {
		queries = append(queries, q)
	}
	sort.Strings(queries)
	return queries
}

// Counts returns the number of present and absent responses.
func (c Collection) Counts() (present, absent int) {
	for _, resp := range c {
		if resp == nil {
			absent++
		} else {
			present++
		}
	}
	return present, absent
}

// Prune returns a collection whose responses hold at most size items.
// size <= 0 returns a copy without truncation.
func (c Collection) Prune(size int) Collection {
	out := make(Collection, len(c))
	for q, resp := range c {
		if resp == nil {
			out[q] = nil
			continue
		}
		head := resp.Head(size)
		items := make([]Item, len(head))
		copy(items, head)
		out[q] = &Response{Query: resp.Query, Items: items}
	}
	return out
}

// Map applies fn to every present response and returns the new collection.
// Absent entries stay absent.
func (c Collection) Map(fn func(*Response) *Response) Collection {
	out := make(Collection, len(c))
	for q, resp := range c {
		if resp == nil {
			out[q] = nil
			continue
		}
		out[q] = fn(resp)
	}
	return out
}
