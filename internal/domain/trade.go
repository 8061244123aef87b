package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single fill of a simulated order against book liquidity.
type Trade struct {
	TradeID       int64
	OrderID       int64
	TransactionID int64
	SecurityID    SecurityID
	PortfolioName string
	Side          Side
	Price         decimal.Decimal
	Volume        decimal.Decimal
	Time          time.Time
}

// Turnover returns price × volume.
func (t *Trade) Turnover() decimal.Decimal {
	return t.Price.Mul(t.Volume)
}
