package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Track returns the catalogue payload of a track.
func (c *Client) Track(ctx context.Context, track string) (TrackPayload, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return TrackPayload{}, false, errors.UnavailableError("qdrant")
	}

	return c.track(ctx, track)
}

// Roles returns the artists credited in roleType on track. Tracks without
// credits, or unknown to the catalogue, have no roles.
func (c *Client) Roles(ctx context.Context, track, roleType string) ([]string, error) {
	p, ok, err := c.Track(ctx, track)
	if err != nil || !ok {
		return nil, err
	}
	return p.Credits[CreditsKey(roleType)], nil
}

// track fetches the payload of one point. The caller holds the read lock.
func (c *Client) track(ctx context.Context, track string) (TrackPayload, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName(c.config.Collection),
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(track))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return TrackPayload{}, false, fmt.Errorf("get track %s: %w", track, err)
	}
	if len(points) == 0 {
		return TrackPayload{}, false, nil
	}

	return extractPayload(points[0].Payload), true, nil
}
