package store

import (
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// OrderStore is a thread-safe in-memory store for simulated orders,
// with a primary index by transaction id and a secondary index by
// portfolio name. Terminal orders stay in the store for history queries.
type OrderStore struct {
	mu              sync.RWMutex
	orders          map[int64]*domain.SimulatedOrder
	portfolioOrders map[string][]*domain.SimulatedOrder // portfolio → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:          make(map[int64]*domain.SimulatedOrder),
		portfolioOrders: make(map[string][]*domain.SimulatedOrder),
	}
}

// Create adds an order to the store. It returns
// domain.ErrDuplicateTransaction if the transaction id is taken.
func (s *OrderStore) Create(o *domain.SimulatedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.TransactionID]; exists {
		return domain.ErrDuplicateTransaction
	}
	s.orders[o.TransactionID] = o
	s.portfolioOrders[o.PortfolioName] = append(s.portfolioOrders[o.PortfolioName], o)
	return nil
}

// Exists reports whether an order with the transaction id was registered.
func (s *OrderStore) Exists(transactionID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.orders[transactionID]
	return ok
}

// Get retrieves an order by transaction id. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(transactionID int64) (*domain.SimulatedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[transactionID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByPortfolio returns orders for a portfolio in reverse registration
// order (newest first). If state is non-nil, only orders in that state are
// included. Pagination is 1-based. Returns the page and the total count of
// matching orders before pagination.
func (s *OrderStore) ListByPortfolio(portfolio string, state *domain.OrderState, page, limit int) ([]*domain.SimulatedOrder, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.portfolioOrders[portfolio]

	filtered := make([]*domain.SimulatedOrder, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if state != nil && all[i].State != *state {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total || start < 0 {
		return []*domain.SimulatedOrder{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// Portfolios returns the names of portfolios with at least one order.
func (s *OrderStore) Portfolios() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.portfolioOrders))
	for name := range s.portfolioOrders {
		names = append(names, name)
	}
	return names
}

// Reset removes every order.
func (s *OrderStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[int64]*domain.SimulatedOrder)
	s.portfolioOrders = make(map[string][]*domain.SimulatedOrder)
}
