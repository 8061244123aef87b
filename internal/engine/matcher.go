package engine

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Fill is one execution of an order against a book level.
type Fill struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// crosses reports whether a limit order at price can trade against a level
// of the opposite side. Crossing is inclusive.
func crosses(side domain.Side, price decimal.Decimal, lvl Level) bool {
	if side == domain.SideBuy {
		return price.GreaterThanOrEqual(lvl.Price)
	}
	return price.LessThanOrEqual(lvl.Price)
}

// TryMatch walks the opposite side of the book best first and fills the
// order's remaining volume against it. Limit orders stop at the first level
// that no longer crosses; market orders take whatever depth there is. Fill
// prices are always the book's. Matched volume is consumed from the book.
//
// A market order facing an empty opposite side yields domain.ErrNoLiquidity
// and no fills. TryMatch does not mutate the order.
func TryMatch(order *domain.SimulatedOrder, book *QuoteBook) ([]Fill, decimal.Decimal, error) {
	remaining := order.Balance
	if book == nil {
		if order.Type == domain.OrderTypeMarket {
			return nil, remaining, domain.ErrNoLiquidity
		}
		return nil, remaining, nil
	}

	opposite := order.Side.Opposite()
	if order.Type == domain.OrderTypeMarket {
		if _, ok := book.Best(opposite); !ok {
			return nil, remaining, domain.ErrNoLiquidity
		}
	}

	var fills []Fill
	for remaining.IsPositive() {
		lvl, ok := book.Best(opposite)
		if !ok {
			break
		}
		if order.Type == domain.OrderTypeLimit && !crosses(order.Side, *order.Price, lvl) {
			break
		}

		vol := remaining
		if !lvl.Unbounded && lvl.Volume.LessThan(vol) {
			vol = lvl.Volume
		}

		fills = append(fills, Fill{Price: lvl.Price, Volume: vol})
		book.Consume(opposite, lvl.Price, vol)
		remaining = remaining.Sub(vol)

		if lvl.Unbounded {
			break
		}
	}

	return fills, remaining, nil
}

// Estimate holds the result of a read-only market order walk.
type Estimate struct {
	VolumeAvailable decimal.Decimal
	FullyFillable   bool
	AveragePrice    *decimal.Decimal // nil when no liquidity
	Total           *decimal.Decimal // nil when no liquidity
	Levels          []Fill
}

// EstimateMarket performs a read-only walk of the side opposite to side to
// estimate a market order of the given volume without placing it.
func EstimateMarket(book *QuoteBook, side domain.Side, volume decimal.Decimal) *Estimate {
	result := &Estimate{Levels: make([]Fill, 0)}
	if book == nil {
		return result
	}

	remaining := volume
	total := decimal.Zero

	book.Walk(side.Opposite(), func(lvl Level) bool {
		if !remaining.IsPositive() {
			return false
		}
		vol := remaining
		if !lvl.Unbounded && lvl.Volume.LessThan(vol) {
			vol = lvl.Volume
		}
		total = total.Add(lvl.Price.Mul(vol))
		result.VolumeAvailable = result.VolumeAvailable.Add(vol)
		remaining = remaining.Sub(vol)
		result.Levels = append(result.Levels, Fill{Price: lvl.Price, Volume: vol})
		return remaining.IsPositive()
	})

	if result.VolumeAvailable.IsPositive() {
		avg := total.Div(result.VolumeAvailable)
		result.AveragePrice = &avg
		result.Total = &total
	}
	result.FullyFillable = result.VolumeAvailable.GreaterThanOrEqual(volume)

	return result
}
