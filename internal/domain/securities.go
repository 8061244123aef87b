package domain

import (
	"sort"
	"sync"
)

// SecurityRegistry tracks known securities in a thread-safe manner.
// Securities are registered from configuration or implicitly when market
// data for them is first seen.
type SecurityRegistry struct {
	mu         sync.RWMutex
	securities map[SecurityID]bool
}

// NewSecurityRegistry creates a registry pre-populated with ids.
func NewSecurityRegistry(ids ...SecurityID) *SecurityRegistry {
	r := &SecurityRegistry{
		securities: make(map[SecurityID]bool, len(ids)),
	}
	for _, id := range ids {
		r.securities[id] = true
	}
	return r
}

// Register adds a security to the registry. Safe for concurrent use.
func (r *SecurityRegistry) Register(id SecurityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.securities[id] = true
}

// Exists returns true if the security has been registered. Safe for concurrent use.
func (r *SecurityRegistry) Exists(id SecurityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.securities[id]
}

// List returns the registered securities in sorted order.
func (r *SecurityRegistry) List() []SecurityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]SecurityID, 0, len(r.securities))
	for id := range r.securities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}
