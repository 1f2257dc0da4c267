package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/covereval/internal/bus"
)

// keepAlive is the interval of SSE comment lines on idle streams.
const keepAlive = 15 * time.Second

// hub fans bus events out to connected stream clients.
type hub struct {
	mu      sync.Mutex
	clients map[chan bus.Event]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan bus.Event]struct{})}
}

func (h *hub) add() chan bus.Event {
	ch := make(chan bus.Event, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) remove(ch chan bus.Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// broadcast delivers event to every client, dropping it for slow ones.
func (h *hub) broadcast(_ context.Context, event bus.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe forwards the run events published on topic to stream clients.
func (h *Handler) Subscribe(ctx context.Context, b bus.Bus, topic string) error {
	return b.Subscribe(ctx, topic, h.hub.broadcast)
}

func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.hub.add()
	defer h.hub.remove(events)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Warn("Failed to encode event", "event_id", event.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
			flusher.Flush()
		}
	}
}
