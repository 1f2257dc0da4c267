package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// EnsureCollection creates the catalogue collection with one cosine named
// vector per entry in dims, plus the payload indexes used by filters.
// An existing collection is left untouched.
func (c *Client) EnsureCollection(ctx context.Context, dims map[string]uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if len(dims) == 0 {
		return fmt.Errorf("at least one vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	fullName := collectionName(c.config.Collection)

	exists, err := c.client.CollectionExists(ctx, fullName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	vectors := make(map[string]*qdrant.VectorParams, len(dims))
	for name, size := range dims {
		vectors[name] = &qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: fullName,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectors),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return c.createPayloadIndexes(ctx, fullName)
}

// createPayloadIndexes indexes the payload fields that filters use.
func (c *Client) createPayloadIndexes(ctx context.Context, fullName string) error {
	indexes := []struct {
		field     string
		fieldType qdrant.FieldType
	}{
		{PayloadTrackID, qdrant.FieldType_FieldTypeKeyword},
		{PayloadArtistID, qdrant.FieldType_FieldTypeKeyword},
		{PayloadEvidence, qdrant.FieldType_FieldTypeKeyword},
		{PayloadTitle, qdrant.FieldType_FieldTypeText},
		{PayloadSHS, qdrant.FieldType_FieldTypeBool},
		{PayloadDuplicate, qdrant.FieldType_FieldTypeBool},
		{PayloadDeezer, qdrant.FieldType_FieldTypeBool},
	}

	for _, idx := range indexes {
		_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: fullName,
			FieldName:      idx.field,
			FieldType:      qdrant.PtrOf(idx.fieldType),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create index on %s: %w", idx.field, err)
		}
	}

	return nil
}

// DeleteCollection drops the catalogue collection.
func (c *Client) DeleteCollection(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.client.DeleteCollection(ctx, collectionName(c.config.Collection)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}
