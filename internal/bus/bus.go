// Package bus publishes evaluation run events to in-process subscribers or
// to Kafka.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "eval.run.completed").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix milliseconds).
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events (e.g., a rerank and its parent run).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Event types, also used as topic suffixes.
const (
	TypeRunCompleted = "eval.run.completed"
	TypeRunFailed    = "eval.run.failed"
)

// DefaultSource identifies events published by this module.
const DefaultSource = "covereval"

// RunPayload describes a finished evaluation run.
type RunPayload struct {
	RunID   string  `json:"run_id"`
	Method  string  `json:"method"`
	Split   string  `json:"split,omitempty"`
	Profile string  `json:"profile,omitempty"`
	Size    int     `json:"size"`
	MAP     float64 `json:"map"`
	Queries int     `json:"queries"`
	Error   string  `json:"error,omitempty"`
	Elapsed float64 `json:"elapsed_seconds"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    DefaultSource,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// RunEvent creates the completion or failure event of a run.
func RunEvent(p RunPayload) Event {
	if p.Error != "" {
		return NewEvent(TypeRunFailed, p)
	}
	return NewEvent(TypeRunCompleted, p)
}
