package bus

import (
	"context"
	"time"

	"github.com/ricesearch/covereval/internal/metrics"
)

// InstrumentedBus wraps a Bus implementation with Prometheus instrumentation.
type InstrumentedBus struct {
	inner Bus
}

// NewInstrumentedBus creates a new instrumented bus.
func NewInstrumentedBus(inner Bus) *InstrumentedBus {
	return &InstrumentedBus{inner: inner}
}

// Publish publishes an event to a topic and records metrics.
func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.inner.Publish(ctx, topic, event)
	metrics.ObserveBusPublish(topic, err, time.Since(start))
	return err
}

// Subscribe subscribes to events on a topic.
func (b *InstrumentedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the underlying bus.
func (b *InstrumentedBus) Close() error {
	return b.inner.Close()
}
