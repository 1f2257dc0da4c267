// Package store persists evaluation runs: their ranked-response collections
// in the {candidates, scores} record format and their metric reports.
package store

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/ranking"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one stored evaluation run.
type Run struct {
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Split   string    `json:"split,omitempty"`
	Profile string    `json:"profile,omitempty"`
	Size    int       `json:"size"`
	Status  RunStatus `json:"status"`
	Error   string    `json:"error,omitempty"`

	// Parent is the run an offline rerank was derived from.
	Parent string `json:"parent,omitempty"`

	CreatedAt time.Time     `json:"created_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Report *evaluation.Report `json:"report,omitempty"`

	// Results maps query ids to records. A nil record marks an absent
	// response.
	Results map[string]*ranking.Record `json:"results,omitempty"`
}

// NewRun creates a run with a fresh id.
func NewRun(method string) *Run {
	return &Run{
		ID:        NewRunID(),
		Method:    method,
		Status:    StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
}

// NewRunID returns a new random run id.
func NewRunID() string {
	return uuid.NewString()
}

// runIDPattern keeps ids usable as file names and redis keys.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateRunID checks that a run id is well-formed.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("run id must start with a letter or digit and contain only letters, digits, '.', '_' or '-' (max 128)")
	}
	return nil
}

// Validate checks the run.
func (r *Run) Validate() error {
	if err := ValidateRunID(r.ID); err != nil {
		return err
	}
	if r.Method == "" {
		return fmt.Errorf("run method is required")
	}
	switch r.Status {
	case StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	return nil
}

// SetCollection stores c as records.
func (r *Run) SetCollection(c ranking.Collection) {
	r.Results = ranking.ToRecords(c)
}

// Collection decodes the stored records.
func (r *Run) Collection() (ranking.Collection, error) {
	return ranking.FromRecords(r.Results)
}

// Summary returns a copy of r without its results.
func (r *Run) Summary() *Run {
	s := *r
	s.Results = nil
	return &s
}

// Label returns a short human-readable description of the run.
func (r *Run) Label() string {
	label := r.Method
	if r.Split != "" {
		label += "/" + r.Split
	}
	if r.Profile != "" {
		label += "/" + r.Profile
	}
	return fmt.Sprintf("%s@%d", label, r.Size)
}
