package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event is one live-feed message pushed to websocket subscribers.
type Event struct {
	Type    string    `json:"type"`
	Market  string    `json:"market"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Hub fans projected events out to websocket subscribers. Publish never
// blocks: a subscriber whose buffer is full has the event dropped and a
// counter incremented, so one slow reader cannot stall the sync pipeline.
type Hub struct {
	logger *zap.Logger
	buf    int

	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan Event
	dropped atomic.Uint64
}

func NewHub(subscriberBuf int, logger *zap.Logger) *Hub {
	if subscriberBuf <= 0 {
		subscriberBuf = 32
	}
	return &Hub{
		logger: logger,
		buf:    subscriberBuf,
		subs:   make(map[uint64]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The cancel function is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber with buffer space.
func (h *Hub) Publish(eventType string, market string, payload any) {
	if h == nil {
		return
	}
	ev := Event{
		Type:    eventType,
		Market:  market,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	h.mu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	h.mu.Unlock()
}

// Stats reports the subscriber count and the cumulative number of events
// dropped on slow subscribers.
func (h *Hub) Stats() (subscribers int, dropped uint64) {
	h.mu.Lock()
	subscribers = len(h.subs)
	h.mu.Unlock()
	return subscribers, h.dropped.Load()
}
