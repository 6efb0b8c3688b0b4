package app

import (
	"sync"
	"time"
)

// Event types published on the hub.
const (
	EventState            = "state"
	EventFocus            = "focus"
	EventIndicator        = "indicator"
	EventZoom             = "zoom"
	EventRotation         = "rotation"
	EventCapturePending   = "capture.pending"
	EventCaptureConfirmed = "capture.confirmed"
	EventCaptureRetry     = "capture.retry"
	EventCaptureDeleted   = "capture.deleted"
	EventError            = "error"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// events are dropped for it.
const subscriberBuffer = 32

// Event is a notification for UI surfaces.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// Hub fans events out to subscribers. Publishing never blocks; a subscriber
// whose buffer is full misses the event.
type Hub struct {
	subs   map[chan Event]struct{}
	closed bool
	mu     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish sends an event of type typ to every subscriber.
func (h *Hub) Publish(typ string, data any) {
	ev := Event{Type: typ, Data: data, Time: time.Now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
