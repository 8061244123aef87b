package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
)

// PriceResponse is the reference price of a security computed from the
// session's simulated trades.
type PriceResponse struct {
	SecurityID     domain.SecurityID
	CurrentPrice   *decimal.Decimal // nil when no trades ever
	Window         string           // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookResponse is a depth snapshot of a security's book.
type BookResponse struct {
	SecurityID domain.SecurityID
	Bids       []engine.Level
	Asks       []engine.Level
	Spread     *decimal.Decimal // nil if either side empty
	SnapshotAt time.Time
}

// EstimateResponse is the simulated outcome of a market order.
type EstimateResponse struct {
	SecurityID      domain.SecurityID
	Side            domain.Side
	VolumeRequested decimal.Decimal
	*engine.Estimate
	EstimatedAt time.Time
}

// GetPrice returns the volume-weighted average price of the simulated
// trades within window of the last trade. It falls back to the last trade
// price when the window holds no volume.
func (s *Session) GetPrice(security domain.SecurityID, window time.Duration) (*PriceResponse, error) {
	if window <= 0 {
		return nil, &domain.ValidationError{Message: "window must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.engine.SecurityExists(security) {
		return nil, domain.ErrSecurityNotFound
	}
	return VWAP(security, s.engine.Trades(security), window), nil
}

// VWAP computes the reference price of trades, which must be in execution
// order. The window ends at the last trade.
func VWAP(security domain.SecurityID, trades []*domain.Trade, window time.Duration) *PriceResponse {
	resp := &PriceResponse{
		SecurityID: security,
		Window:     formatDuration(window),
	}
	if len(trades) == 0 {
		return resp
	}

	lastTrade := trades[len(trades)-1]
	resp.LastTradeAt = &lastTrade.Time
	windowStart := lastTrade.Time.Add(-window)

	// Iterate backwards from the tail until the trade time falls outside
	// the window.
	sumPriceVolume := decimal.Zero
	sumVolume := decimal.Zero
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Time.Before(windowStart) {
			break
		}
		sumPriceVolume = sumPriceVolume.Add(t.Turnover())
		sumVolume = sumVolume.Add(t.Volume)
		resp.TradesInWindow++
	}

	price := lastTrade.Price
	if sumVolume.IsPositive() {
		price = sumPriceVolume.DivRound(sumVolume, domain.MaxDecimalPlaces)
	}
	resp.CurrentPrice = &price
	return resp
}

// GetBook returns the top depth levels of a security's book.
func (s *Session) GetBook(security domain.SecurityID, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.engine.Depth(security, depth)
	if err != nil {
		return nil, err
	}
	resp := &BookResponse{
		SecurityID: security,
		Bids:       book.Bids,
		Asks:       book.Asks,
		SnapshotAt: s.clock(),
	}
	// spread = best ask - best bid
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		spread := book.Asks[0].Price.Sub(book.Bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// Estimate simulates a market order against the current book without
// placing it.
func (s *Session) Estimate(security domain.SecurityID, side domain.Side, volume decimal.Decimal) (*EstimateResponse, error) {
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if !volume.IsPositive() {
		return nil, &domain.ValidationError{
			Message: "volume must be positive",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	est, err := s.engine.EstimateMarket(security, side, volume)
	if err != nil {
		return nil, err
	}
	return &EstimateResponse{
		SecurityID:      security,
		Side:            side,
		VolumeRequested: volume,
		Estimate:        est,
		EstimatedAt:     s.clock(),
	}, nil
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
