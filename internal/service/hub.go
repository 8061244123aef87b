package service

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Subscription receives the output messages of one session.
type Subscription struct {
	C      <-chan domain.Message
	ch     chan domain.Message
	closed bool
}

// Hub fans output messages out to live subscribers. A subscriber that falls
// behind loses messages rather than blocking the engine; the journal keeps
// the complete stream.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given channel buffer. On a
// closed hub the returned subscription's channel is already closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	ch := make(chan domain.Message, buffer)
	sub := &Subscription{C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closed = true
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// Broadcast delivers msg to every subscriber that has room for it.
func (h *Hub) Broadcast(msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.remove(sub)
	}
}

func (h *Hub) remove(sub *Subscription) {
	delete(h.subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
