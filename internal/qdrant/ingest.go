package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// DefaultBatchSize is the number of tracks per upsert call.
const DefaultBatchSize = 256

// Track is one catalogue entry to index.
type Track struct {
	TrackID   string               `json:"track_id"`
	Title     string               `json:"title"`
	ArtistID  string               `json:"artist_id,omitempty"`
	SHS       bool                 `json:"shs,omitempty"`
	Duplicate bool                 `json:"duplicate,omitempty"`
	Deezer    bool                 `json:"dzr_mapped,omitempty"`
	Credits   map[string][]string  `json:"credits,omitempty"`
	Vectors   map[string][]float32 `json:"vectors"`
}

// Validate checks the track can be indexed.
func (t Track) Validate() error {
	if t.TrackID == "" {
		return fmt.Errorf("track_id is required")
	}
	if len(t.Vectors) == 0 {
		return fmt.Errorf("track %s has no vectors", t.TrackID)
	}
	for name, v := range t.Vectors {
		if len(v) == 0 {
			return fmt.Errorf("track %s: vector %s is empty", t.TrackID, name)
		}
	}
	return nil
}

// UpsertTracks indexes tracks in batches of batchSize.
func (c *Client) UpsertTracks(ctx context.Context, tracks []Track, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for i := 0; i < len(tracks); i += batchSize {
		end := i + batchSize
		if end > len(tracks) {
			end = len(tracks)
		}

		if err := c.upsert(ctx, tracks[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

func (c *Client) upsert(ctx context.Context, tracks []Track) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	points := make([]*qdrant.PointStruct, 0, len(tracks))
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return err
		}
		points = append(points, toPointStruct(t))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(c.config.Collection),
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// toPointStruct converts a Track to a Qdrant PointStruct.
func toPointStruct(t Track) *qdrant.PointStruct {
	vectors := make(map[string]*qdrant.Vector, len(t.Vectors))
	evidence := make([]any, 0, len(t.Vectors))
	for _, name := range sortedKeys(t.Vectors) {
		vectors[name] = &qdrant.Vector{Data: t.Vectors[name]}
		evidence = append(evidence, name)
	}

	return &qdrant.PointStruct{
		Id: qdrant.NewIDUUID(PointID(t.TrackID)),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vectors{
				Vectors: &qdrant.NamedVectors{
					Vectors: vectors,
				},
			},
		},
		Payload: qdrant.NewValueMap(trackPayload(t, evidence)),
	}
}

func trackPayload(t Track, evidence []any) map[string]any {
	payload := map[string]any{
		PayloadTrackID:   t.TrackID,
		PayloadTitle:     t.Title,
		PayloadSHS:       t.SHS,
		PayloadDuplicate: t.Duplicate,
		PayloadDeezer:    t.Deezer,
		PayloadEvidence:  evidence,
	}
	if t.ArtistID != "" {
		payload[PayloadArtistID] = t.ArtistID
	}
	for role, artists := range t.Credits {
		list := make([]any, len(artists))
		for i, a := range artists {
			list[i] = a
		}
		payload[CreditsKey(role)] = list
	}
	return payload
}

func sortedKeys(m map[string][]float32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
