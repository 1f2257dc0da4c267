package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/search"
)

var _ search.Backend = (*Client)(nil)

// Search returns the tracks nearest to the query track on the request's
// evidence source. It returns a nil response when the query track is not
// in the catalogue or carries no vector for the source.
func (c *Client) Search(ctx context.Context, req search.Request) (*ranking.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.UnavailableError("qdrant")
	}

	query, ok, err := c.track(ctx, req.Query())
	if err != nil {
		return nil, err
	}
	if !ok || !query.HasEvidence(req.Source().Vector()) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	queryReq := &qdrant.QueryPoints{
		CollectionName: collectionName(c.config.Collection),
		Query:          qdrant.NewQueryNearest(qdrant.NewVectorInputID(qdrant.NewIDUUID(PointID(req.Query())))),
		Using:          qdrant.PtrOf(req.Source().Vector()),
		Filter:         buildFilter(req),
		Limit:          qdrant.PtrOf(uint64(req.Size())),
		WithPayload:    payloadSelector(req.Fields()),
	}

	points, err := c.client.Query(ctx, queryReq)
	if err != nil {
		return nil, fmt.Errorf("nearest query: %w", err)
	}

	return ranking.NewResponse(req.Query(), pointsToItems(req.Query(), points)...), nil
}

// buildFilter translates the request's candidate restrictions into a
// Qdrant filter. The query point itself is always excluded.
func buildFilter(req search.Request) *qdrant.Filter {
	filter := &qdrant.Filter{
		MustNot: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_HasId{
					HasId: &qdrant.HasIdCondition{
						HasId: []*qdrant.PointId{qdrant.NewIDUUID(PointID(req.Query()))},
					},
				},
			},
		},
	}

	f := req.Filters()
	if f.SHSOnly {
		filter.Must = append(filter.Must, boolCondition(PayloadSHS, true))
	}
	if f.DeezerMapped {
		filter.Must = append(filter.Must, boolCondition(PayloadDeezer, true))
	}
	if f.ExcludeDuplicates {
		filter.MustNot = append(filter.MustNot, boolCondition(PayloadDuplicate, true))
	}

	if req.Mode() == search.ModeQueryString {
		filter.Must = append(filter.Must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: PayloadTitle,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Text{
							Text: req.Title(),
						},
					},
				},
			},
		})
	}

	if req.Source() == search.SourceCredits {
		filter.Must = append(filter.Must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: CreditsKey(req.RoleType()),
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{
								Strings: req.RoleArtists(),
							},
						},
					},
				},
			},
		})
	}

	return filter
}

func boolCondition(key string, value bool) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Boolean{
						Boolean: value,
					},
				},
			},
		},
	}
}

// payloadSelector requests the track id plus any extra fields.
func payloadSelector(fields []string) *qdrant.WithPayloadSelector {
	if len(fields) == 0 {
		return qdrant.NewWithPayloadInclude(PayloadTrackID)
	}
	return qdrant.NewWithPayloadInclude(append([]string{PayloadTrackID}, fields...)...)
}

// pointsToItems converts scored points in backend order. Points without a
// track id and the query itself are dropped.
func pointsToItems(query string, points []*qdrant.ScoredPoint) []ranking.Item {
	items := make([]ranking.Item, 0, len(points))
	seen := make(map[string]struct{}, len(points))

	for _, p := range points {
		payload := extractPayload(p.Payload)
		id := payload.TrackID
		if id == "" || id == query {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		item := ranking.Item{ID: id, Score: float64(p.Score)}
		delete(payload.Fields, PayloadTrackID)
		if len(payload.Fields) > 0 {
			item.Fields = payload.Fields
		}
		items = append(items, item)
	}

	return items
}
