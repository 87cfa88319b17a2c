package publish

import (
	"fmt"
	"sync"
)

// Event names pushed to observers.
const (
	EventTimerUpdate  = "timer-update"
	EventIdle         = "idle"
	EventIdleResolved = "idle-resolved"
)

const subscriberBuffer = 32

// Update is a single push notification.
type Update struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// EmitError reports that some subscribers did not receive an update because
// their buffer was full.
type EmitError struct {
	Event   string
	Dropped int
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("publish: %s dropped for %d subscriber(s)", e.Event, e.Dropped)
}

// Hub fans updates out to subscribers without ever blocking the sender.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan Update
}

func NewHub() *Hub { return &Hub{subs: make(map[uint64]chan Update)} }

// Subscribe registers a receiver. cancel unregisters it and closes the
// channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit delivers u to every subscriber that has room.
func (h *Hub) Emit(u Update) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return &EmitError{Event: u.Event, Dropped: dropped}
	}
	return nil
}
