package search

import (
	"context"

	"github.com/ricesearch/covereval/internal/ranking"
)

// Searcher returns ranked candidates for a request.
//
// A nil response with a nil error means the query has no evidence for the
// requested source (e.g. a track without lyrics). That is distinct from a
// non-nil response with no items. Implementations never return the query
// track among the candidates.
type Searcher interface {
	Search(ctx context.Context, req Request) (*ranking.Response, error)
}

// AttributeSource looks up per-track metadata held by the backend.
type AttributeSource interface {
	// Roles returns the artists credited in roleType on track.
	Roles(ctx context.Context, track, roleType string) ([]string, error)
}

// Backend is a searcher that can also answer attribute lookups.
type Backend interface {
	Searcher
	AttributeSource
	Close() error
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, req Request) (*ranking.Response, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, req Request) (*ranking.Response, error) {
	return f(ctx, req)
}
