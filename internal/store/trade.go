package store

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// TradeStore is a thread-safe in-memory store for simulated trades,
// keyed by security. Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[domain.SecurityID][]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[domain.SecurityID][]*domain.Trade),
	}
}

// Append adds a trade to its security's chronological list.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[t.SecurityID] = append(s.trades[t.SecurityID], t)
}

// GetBySecurity returns all trades for a security in chronological order.
// Returns an empty slice if no trades exist for the security.
func (s *TradeStore) GetBySecurity(security domain.SecurityID) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[security]
	if trades == nil {
		return []*domain.Trade{}
	}

	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// Reset removes every trade.
func (s *TradeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = make(map[domain.SecurityID][]*domain.Trade)
}
