package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DataPoint is one completed run's score.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Value     float64   `json:"value"`
}

// History stores run scores per series (typically method/profile/mode).
type History interface {
	Record(ctx context.Context, series string, dp DataPoint) error
	Load(ctx context.Context, series string, since time.Time) ([]DataPoint, error)
	Series(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryHistory keeps the most recent points of each series in memory.
type MemoryHistory struct {
	mu        sync.RWMutex
	series    map[string][]DataPoint
	maxPoints int
}

// NewMemoryHistory creates an in-memory history keeping maxPoints per series.
func NewMemoryHistory(maxPoints int) *MemoryHistory {
	if maxPoints <= 0 {
		maxPoints = 1000
	}
	return &MemoryHistory{
		series:    make(map[string][]DataPoint),
		maxPoints: maxPoints,
	}
}

// Record appends a point to series.
func (h *MemoryHistory) Record(_ context.Context, series string, dp DataPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	points := append(h.series[series], dp)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	if len(points) > h.maxPoints {
		points = points[len(points)-h.maxPoints:]
	}
	h.series[series] = points
	return nil
}

// Load returns the points of series recorded at or after since.
func (h *MemoryHistory) Load(_ context.Context, series string, since time.Time) ([]DataPoint, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []DataPoint
	for _, dp := range h.series[series] {
		if !dp.Timestamp.Before(since) {
			out = append(out, dp)
		}
	}
	return out, nil
}

// Series returns the known series names in sorted order.
func (h *MemoryHistory) Series(_ context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.series))
	for name := range h.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (h *MemoryHistory) Close() error {
	return nil
}

// SeriesName joins run coordinates into a history series name.
func SeriesName(method, profile, mode string) string {
	return method + ":" + profile + ":" + mode
}
