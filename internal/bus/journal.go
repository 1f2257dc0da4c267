package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ricesearch/covereval/internal/pkg/logger"
)

// Journal appends events to a JSON-lines file.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// journalEntry is one line of the journal.
type journalEntry struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// OpenJournal opens (or creates) the journal file at path.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{path: path, file: f}, nil
}

// Append writes one event.
func (j *Journal) Append(topic string, event Event) error {
	data, err := json.Marshal(journalEntry{Topic: topic, Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return fmt.Errorf("journal closed")
	}
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReadJournal returns the events recorded at path, oldest first. Events
// older than since (unix milliseconds) are skipped. Malformed lines are
// skipped.
func ReadJournal(path string, since int64) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Event.Timestamp < since {
			continue
		}
		events = append(events, entry.Event)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read journal: %w", err)
	}
	return events, nil
}

// JournaledBus records every published event before forwarding it.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner so published events are appended to journal.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Discard()
	}
	return &JournaledBus{inner: inner, journal: journal, log: log}
}

// Publish appends the event to the journal, then publishes it.
// A journal write failure is logged and does not block the publish.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("Failed to journal event", "topic", topic, "event_id", event.ID, "error", err)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe subscribes to events on a topic.
func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus and the journal.
func (b *JournaledBus) Close() error {
	err := b.inner.Close()
	if jerr := b.journal.Close(); err == nil {
		err = jerr
	}
	return err
}
