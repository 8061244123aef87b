package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Position is the account state of one (portfolio, security) pair.
// For the cash pseudo-security the fields are portfolio aggregates.
type Position struct {
	PortfolioName string
	SecurityID    domain.SecurityID
	BeginValue    decimal.Decimal
	CurrentValue  decimal.Decimal // signed volume; cash amount for the cash position
	AveragePrice  decimal.Decimal // zero while flat
	BlockedValue  decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Commission    decimal.Decimal
}

// IsFlat reports whether the position holds no volume.
func (p *Position) IsFlat() bool {
	return p.CurrentValue.IsZero()
}

// Exposure returns |CurrentValue| × AveragePrice.
func (p *Position) Exposure() decimal.Decimal {
	return p.CurrentValue.Abs().Mul(p.AveragePrice)
}

// Field returns the value of f.
func (p *Position) Field(f domain.PositionField) decimal.Decimal {
	switch f {
	case domain.FieldBeginValue:
		return p.BeginValue
	case domain.FieldCurrentValue:
		return p.CurrentValue
	case domain.FieldAveragePrice:
		return p.AveragePrice
	case domain.FieldBlockedValue:
		return p.BlockedValue
	case domain.FieldRealizedPnL:
		return p.RealizedPnL
	case domain.FieldUnrealizedPnL:
		return p.UnrealizedPnL
	case domain.FieldCommission:
		return p.Commission
	}
	return decimal.Zero
}

// diff returns the fields of p that differ from before, in the fixed
// position field order.
func (p *Position) diff(before *Position) []domain.PositionChange {
	var changes []domain.PositionChange
	for _, f := range domain.PositionFieldOrder {
		now := p.Field(f)
		if before != nil && now.Equal(before.Field(f)) {
			continue
		}
		if before == nil && now.IsZero() {
			continue
		}
		changes = append(changes, domain.PositionChange{Field: f, Value: now})
	}
	return changes
}
