package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Side indicates whether an order or trade buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() decimal.Decimal {
	if s == SideBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// OrderState represents the lifecycle state of a simulated order.
// A partially filled order stays Active with Balance < Volume.
type OrderState string

const (
	OrderStatePending OrderState = "pending"
	OrderStateActive  OrderState = "active"
	OrderStateDone    OrderState = "done"
	OrderStateFailed  OrderState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateDone || s == OrderStateFailed
}

// SimulatedOrder is an order owned by the engine's registry.
type SimulatedOrder struct {
	TransactionID  int64
	OrderID        int64
	SecurityID     SecurityID
	PortfolioName  string
	Side           Side
	Price          *decimal.Decimal // nil for market orders
	Volume         decimal.Decimal
	Balance        decimal.Decimal // remaining volume
	Type           OrderType
	State          OrderState
	RegisteredTime time.Time
	Seq            uint64 // registration sequence, breaks price ties
}

// FilledVolume returns the executed part of the order.
func (o *SimulatedOrder) FilledVolume() decimal.Decimal {
	return o.Volume.Sub(o.Balance)
}

// IsPartiallyFilled reports whether some but not all volume executed.
func (o *SimulatedOrder) IsPartiallyFilled() bool {
	return o.Balance.IsPositive() && o.Balance.LessThan(o.Volume)
}

// LimitPrice returns the order price, or zero for market orders.
func (o *SimulatedOrder) LimitPrice() decimal.Decimal {
	if o.Price == nil {
		return decimal.Zero
	}
	return *o.Price
}
