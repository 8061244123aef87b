package service

import (
	"fmt"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/ledger"
)

// ValidOrderStates lists all valid order state values for filtering.
var ValidOrderStates = map[domain.OrderState]bool{
	domain.OrderStatePending: true,
	domain.OrderStateActive:  true,
	domain.OrderStateDone:    true,
	domain.OrderStateFailed:  true,
}

// GetOrder retrieves an order by its registering transaction id.
func (s *Session) GetOrder(transactionID int64) (*domain.SimulatedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.engine.Order(transactionID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns a paginated list of a portfolio's orders with optional
// state filtering.
func (s *Session) ListOrders(portfolio string, state *domain.OrderState, page, limit int) ([]domain.SimulatedOrder, int, error) {
	if portfolio == "" {
		return nil, 0, &domain.ValidationError{
			Message: "portfolio is required",
		}
	}

	// Validate state if provided.
	if state != nil {
		if !ValidOrderStates[*state] {
			return nil, 0, &domain.ValidationError{
				Message: fmt.Sprintf("Invalid state filter: '%s'. Must be one of: pending, active, done, failed", *state),
			}
		}
	}

	// Validate pagination.
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, total := s.engine.Orders(portfolio, state, page, limit)
	return orders, total, nil
}

// Positions returns the account positions of one portfolio, or of every
// portfolio when portfolio is empty.
func (s *Session) Positions(portfolio string) ([]ledger.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.engine.Positions()
	if portfolio == "" {
		return all, nil
	}
	out := make([]ledger.Position, 0)
	for _, p := range all {
		if p.PortfolioName == portfolio {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrPortfolioNotFound
	}
	return out, nil
}
