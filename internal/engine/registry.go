package engine

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

// restingEntry is an active limit order in the resting index.
type restingEntry struct {
	Price decimal.Decimal
	Seq   uint64
	Order *domain.SimulatedOrder
}

// restingBidLess orders buy orders by price descending, then registration.
func restingBidLess(a, b restingEntry) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.GreaterThan(b.Price)
	}
	return a.Seq < b.Seq
}

// restingAskLess orders sell orders by price ascending, then registration.
func restingAskLess(a, b restingEntry) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.LessThan(b.Price)
	}
	return a.Seq < b.Seq
}

type restingBook struct {
	bids *btree.BTreeG[restingEntry]
	asks *btree.BTreeG[restingEntry]
}

func newRestingBook() *restingBook {
	return &restingBook{
		bids: btree.NewG[restingEntry](btreeDegree, restingBidLess),
		asks: btree.NewG[restingEntry](btreeDegree, restingAskLess),
	}
}

func (rb *restingBook) side(s domain.Side) *btree.BTreeG[restingEntry] {
	if s == domain.SideBuy {
		return rb.bids
	}
	return rb.asks
}

// Registry owns every simulated order of an engine: the history store keyed
// by transaction id and the price/time index of resting limit orders per
// security. It assigns order ids and registration sequence numbers.
type Registry struct {
	orders  *store.OrderStore
	resting map[domain.SecurityID]*restingBook

	lastOrderID int64
	lastSeq     uint64
}

// NewRegistry creates an empty registry backed by orders.
func NewRegistry(orders *store.OrderStore) *Registry {
	return &Registry{
		orders:  orders,
		resting: make(map[domain.SecurityID]*restingBook),
	}
}

// Add stores a new order, assigning its order id and sequence. It returns
// domain.ErrDuplicateTransaction if the transaction id was already used.
func (r *Registry) Add(o *domain.SimulatedOrder) error {
	if r.orders.Exists(o.TransactionID) {
		return domain.ErrDuplicateTransaction
	}
	r.lastOrderID++
	r.lastSeq++
	o.OrderID = r.lastOrderID
	o.Seq = r.lastSeq
	return r.orders.Create(o)
}

// Known reports whether a transaction id was already registered.
func (r *Registry) Known(transactionID int64) bool {
	return r.orders.Exists(transactionID)
}

// Get returns the order registered under the transaction id.
func (r *Registry) Get(transactionID int64) (*domain.SimulatedOrder, error) {
	return r.orders.Get(transactionID)
}

// Rest puts an active limit order into the resting index.
func (r *Registry) Rest(o *domain.SimulatedOrder) {
	rb, ok := r.resting[o.SecurityID]
	if !ok {
		rb = newRestingBook()
		r.resting[o.SecurityID] = rb
	}
	rb.side(o.Side).ReplaceOrInsert(restingEntry{Price: *o.Price, Seq: o.Seq, Order: o})
}

// Unrest removes an order from the resting index if present.
func (r *Registry) Unrest(o *domain.SimulatedOrder) {
	rb, ok := r.resting[o.SecurityID]
	if !ok || o.Price == nil {
		return
	}
	rb.side(o.Side).Delete(restingEntry{Price: *o.Price, Seq: o.Seq})
	if rb.bids.Len() == 0 && rb.asks.Len() == 0 {
		delete(r.resting, o.SecurityID)
	}
}

// Resting returns the resting orders of a security in re-evaluation order:
// buy orders best price first, then sell orders best price first, ties
// broken by registration.
func (r *Registry) Resting(security domain.SecurityID) []*domain.SimulatedOrder {
	rb, ok := r.resting[security]
	if !ok {
		return nil
	}
	out := make([]*domain.SimulatedOrder, 0, rb.bids.Len()+rb.asks.Len())
	collect := func(e restingEntry) bool {
		out = append(out, e.Order)
		return true
	}
	rb.bids.Ascend(collect)
	rb.asks.Ascend(collect)
	return out
}

// RestingCount returns the number of resting orders of a security.
func (r *Registry) RestingCount(security domain.SecurityID) int {
	rb, ok := r.resting[security]
	if !ok {
		return 0
	}
	return rb.bids.Len() + rb.asks.Len()
}

// PendingVolume sums the balance of a portfolio's resting orders on the
// given security and side.
func (r *Registry) PendingVolume(portfolio string, security domain.SecurityID, side domain.Side) decimal.Decimal {
	total := decimal.Zero
	rb, ok := r.resting[security]
	if !ok {
		return total
	}
	rb.side(side).Ascend(func(e restingEntry) bool {
		if e.Order.PortfolioName == portfolio {
			total = total.Add(e.Order.Balance)
		}
		return true
	})
	return total
}

// Orders returns a page of a portfolio's orders, newest first.
func (r *Registry) Orders(portfolio string, state *domain.OrderState, page, limit int) ([]*domain.SimulatedOrder, int) {
	return r.orders.ListByPortfolio(portfolio, state, page, limit)
}

// Reset drops every order and restarts id sequences.
func (r *Registry) Reset() {
	r.orders.Reset()
	r.resting = make(map[domain.SecurityID]*restingBook)
	r.lastOrderID = 0
	r.lastSeq = 0
}
