package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
)

const subscriberBuffer = 16

// Hub fans progress events out to subscribers. Publishing never blocks: a
// subscriber that falls behind its buffer loses events rather than stalling
// the pipeline.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]chan entity.ProgressEvent
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]chan entity.ProgressEvent),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its id plus the event
// channel. The first event on the channel is always the connected ack.
func (h *Hub) Subscribe() (string, <-chan entity.ProgressEvent) {
	id := uuid.NewString()
	ch := make(chan entity.ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	ch <- entity.ProgressEvent{Type: entity.EventConnected}
	h.logger.Debug("hub.subscribe", "subscriber_id", id, "subscribers", len(h.subs))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call for
// an unknown or already removed id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
	h.logger.Debug("hub.unsubscribe", "subscriber_id", id, "subscribers", len(h.subs))
}

// Publish delivers ev to every subscriber that has buffer room.
func (h *Hub) Publish(ev entity.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Warn("hub.event_dropped", "subscriber_id", id, "job_id", ev.JobID, "type", ev.Type)
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many events were discarded on full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close shuts the hub down, closing every subscriber channel. Publish and
// Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
