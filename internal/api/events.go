package api

import (
	"sync"
	"time"
)

// Event is one message pushed to /api/events subscribers
type Event struct {
	Type  string    `json:"type"` // "frame" or "error"
	Seq   uint64    `json:"seq,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// Hub fans events out to subscribers. A subscriber that falls behind
// misses events; Publish never blocks.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel receiving future events
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber with room for it
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// FrameWritten publishes a frame event. Its signature matches
// exporter.WithFrameHandler.
func (h *Hub) FrameWritten(seq uint64) {
	h.Publish(Event{Type: "frame", Seq: seq, Time: time.Now()})
}

// FrameFailed publishes an error event. Its signature matches
// exporter.WithErrorHandler.
func (h *Hub) FrameFailed(err error) {
	h.Publish(Event{Type: "error", Error: err.Error(), Time: time.Now()})
}
