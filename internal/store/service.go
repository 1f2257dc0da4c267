package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Config selects and configures the storage backend.
type Config struct {
	// Type is memory, file or redis.
	Type string

	// Dir is the directory of the file storage.
	Dir string

	// RedisURL is the URL of the redis storage.
	RedisURL string

	// TTL expires redis entries. Zero keeps them forever.
	TTL time.Duration
}

// NewStorage creates the storage backend selected by cfg.
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file storage needs a directory")
		}
		return NewFileStorage(cfg.Dir), nil
	case "redis":
		return NewRedisStorage(cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

// ResultStore manages stored evaluation runs.
type ResultStore struct {
	storage Storage
}

// NewResultStore creates a result store over storage.
func NewResultStore(storage Storage) *ResultStore {
	return &ResultStore{storage: storage}
}

// Open creates a result store with the backend selected by cfg.
func Open(cfg Config) (*ResultStore, error) {
	storage, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	return NewResultStore(storage), nil
}

// SaveRun validates and persists a run.
func (s *ResultStore) SaveRun(ctx context.Context, run *Run) error {
	if err := run.Validate(); err != nil {
		return errors.ValidationError(fmt.Sprintf("invalid run: %v", err))
	}
	if err := s.storage.Save(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun loads a run with its results.
func (s *ResultStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if err := ValidateRunID(id); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	return s.storage.Load(ctx, id)
}

// ListRuns returns run summaries, newest first.
func (s *ResultStore) ListRuns(ctx context.Context) ([]*Run, error) {
	runs, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

// DeleteRun deletes a run.
func (s *ResultStore) DeleteRun(ctx context.Context, id string) error {
	if err := ValidateRunID(id); err != nil {
		return errors.ValidationError(err.Error())
	}
	return s.storage.Delete(ctx, id)
}

// Close closes the underlying storage.
func (s *ResultStore) Close() error {
	return s.storage.Close()
}
