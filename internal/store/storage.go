package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Storage is the interface for run persistence.
type Storage interface {
	// Save saves a run, replacing any run with the same id.
	Save(ctx context.Context, run *Run) error

	// Load loads a run with its results.
	Load(ctx context.Context, id string) (*Run, error)

	// List returns the summaries of all stored runs.
	List(ctx context.Context) ([]*Run, error)

	// Delete deletes a run. Deleting a missing run is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the storage's resources.
	Close() error
}

// MemoryStorage stores runs in memory (for testing and one-shot runs).
type MemoryStorage struct {
	runs map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs: make(map[string][]byte),
	}
}

// Save stores an encoded copy so later mutations of run are not visible.
func (m *MemoryStorage) Save(_ context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = data
	return nil
}

func (m *MemoryStorage) Load(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	data, exists := m.runs[id]
	m.mu.RUnlock()

	if !exists {
		return nil, errors.NotFoundError(fmt.Sprintf("run %s", id))
	}
	return decodeRun(data)
}

func (m *MemoryStorage) List(_ context.Context) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, data := range m.runs {
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run.Summary())
	}
	return runs, nil
}

func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, id)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// FileStorage stores each run as a JSON file.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{
		basePath: basePath,
	}
}

func (f *FileStorage) runPath(id string) string {
	return filepath.Join(f.basePath, id+".json")
}

func (f *FileStorage) Save(_ context.Context, run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Ensure directory exists
	if err := os.MkdirAll(f.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	// Write then rename so readers never see a partial file.
	path := f.runPath(run.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	return nil
}

func (f *FileStorage) Load(_ context.Context, id string) (*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(fmt.Sprintf("run %s", id))
		}
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	return decodeRun(data)
}

func (f *FileStorage) List(_ context.Context) ([]*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, err := os.Stat(f.basePath); os.IsNotExist(err) {
		return []*Run{}, nil
	}

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var runs []*Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.basePath, entry.Name()))
		if err != nil {
			continue // Skip files we can't read
		}

		run, err := decodeRun(data)
		if err != nil {
			continue // Skip invalid files
		}

		runs = append(runs, run.Summary())
	}

	return runs, nil
}

func (f *FileStorage) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.runPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run file: %w", err)
	}

	return nil
}

func (f *FileStorage) Close() error {
	return nil
}

func decodeRun(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
