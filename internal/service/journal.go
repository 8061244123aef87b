package service

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Journal is the append-only output log of a session. Every appended
// message is also broadcast to the session's hub.
type Journal struct {
	mu   sync.RWMutex
	msgs []domain.Message
	hub  *Hub
}

// NewJournal creates an empty journal publishing to hub.
func NewJournal(hub *Hub) *Journal {
	return &Journal{hub: hub}
}

// Append records msg and broadcasts it. Subscribers see messages in
// journal order.
func (j *Journal) Append(msg domain.Message) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.msgs = append(j.msgs, msg)
	j.hub.Broadcast(msg)
}

// Len returns the number of recorded messages.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.msgs)
}

// Read returns up to limit messages starting at offset. A limit of zero or
// less reads to the end.
func (j *Journal) Read(offset, limit int) []domain.Message {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(j.msgs) {
		return []domain.Message{}
	}
	end := len(j.msgs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.Message, end-offset)
	copy(out, j.msgs[offset:end])
	return out
}
