package engine

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/ledger"
)

// BookDepth is a read-only view of a security's quote book.
type BookDepth struct {
	SecurityID domain.SecurityID
	Bids       []Level
	Asks       []Level
}

// Depth returns up to n levels per side of a security's book.
func (e *Emulator) Depth(security domain.SecurityID, n int) (*BookDepth, error) {
	book, ok := e.books.Get(security)
	if !ok {
		if !e.securities.Exists(security) {
			return nil, domain.ErrSecurityNotFound
		}
		return &BookDepth{SecurityID: security, Bids: []Level{}, Asks: []Level{}}, nil
	}
	bids, asks := book.Depth(n)
	return &BookDepth{SecurityID: security, Bids: bids, Asks: asks}, nil
}

// EstimateMarket estimates a market order against the current book.
func (e *Emulator) EstimateMarket(security domain.SecurityID, side domain.Side, volume decimal.Decimal) (*Estimate, error) {
	if !e.securities.Exists(security) {
		return nil, domain.ErrSecurityNotFound
	}
	book, _ := e.books.Get(security)
	return EstimateMarket(book, side, volume), nil
}

// Positions returns every account position.
func (e *Emulator) Positions() []ledger.Position {
	return e.ledger.Positions()
}

// Position returns the position of a (portfolio, security) pair.
func (e *Emulator) Position(portfolio string, security domain.SecurityID) (ledger.Position, bool) {
	return e.ledger.Position(portfolio, security)
}

// Order returns a copy of the order registered under the transaction id.
func (e *Emulator) Order(transactionID int64) (domain.SimulatedOrder, error) {
	o, err := e.registry.Get(transactionID)
	if err != nil {
		return domain.SimulatedOrder{}, err
	}
	return *o, nil
}

// Orders returns a page of a portfolio's orders, newest first.
func (e *Emulator) Orders(portfolio string, state *domain.OrderState, page, limit int) ([]domain.SimulatedOrder, int) {
	orders, total := e.registry.Orders(portfolio, state, page, limit)
	out := make([]domain.SimulatedOrder, len(orders))
	for i, o := range orders {
		out[i] = *o
	}
	return out, total
}

// Trades returns the simulated trades of a security in order.
func (e *Emulator) Trades(security domain.SecurityID) []*domain.Trade {
	return e.trades.GetBySecurity(security)
}

// Securities returns every security the engine can trade.
func (e *Emulator) Securities() []domain.SecurityID {
	return e.securities.List()
}

// SecurityExists reports whether the engine knows the security.
func (e *Emulator) SecurityExists(security domain.SecurityID) bool {
	return e.securities.Exists(security)
}
