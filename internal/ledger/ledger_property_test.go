package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Closing a position built from several entries realizes exactly
// (exit - avg) * volume * sign against the entry average.
func TestProperty_RealizedPnLIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side")
		entries := rapid.IntRange(1, 6).Draw(t, "entries")

		l := New(Options{AveragePricePrecision: 12})
		l.Fund("pf", decimal.NewFromInt(1_000_000))

		total := decimal.Zero
		cost := decimal.Zero
		for i := 0; i < entries; i++ {
			price := decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(t, "entryPrice"))
			vol := decimal.NewFromInt(rapid.Int64Range(1, 50).Draw(t, "entryVolume"))
			l.ApplyTrade("pf", sec, side, price, vol)
			total = total.Add(vol)
			cost = cost.Add(price.Mul(vol))
		}

		pos, _ := l.Position("pf", sec)
		avg := pos.AveragePrice
		exact := cost.Div(total)
		if avg.Sub(exact).Abs().GreaterThan(decimal.New(1, -10)) {
			t.Fatalf("average %s drifted from exact %s", avg, exact)
		}

		exit := decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(t, "exitPrice"))
		l.ApplyTrade("pf", sec, side.Opposite(), exit, total)

		pos, _ = l.Position("pf", sec)
		if !pos.IsFlat() {
			t.Fatalf("position not flat: %s", pos.CurrentValue)
		}
		want := exit.Sub(avg).Mul(total).Mul(side.Sign())
		if !pos.RealizedPnL.Equal(want) {
			t.Fatalf("realized %s, want %s", pos.RealizedPnL, want)
		}
		if !pos.AveragePrice.IsZero() {
			t.Fatalf("flat position kept average %s", pos.AveragePrice)
		}
	})
}

// Cash current value always equals funding plus realized minus commission.
func TestProperty_CashAggregates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := New(Options{})
		begin := decimal.NewFromInt(rapid.Int64Range(0, 1_000_000).Draw(t, "begin"))
		l.Fund("pf", begin)

		steps := rapid.IntRange(0, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side")
			price := decimal.NewFromInt(rapid.Int64Range(1, 500).Draw(t, "price"))
			vol := decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "volume"))
			l.ApplyTrade("pf", sec, side, price, vol)
			if rapid.Bool().Draw(t, "charge") {
				l.AddCommission("pf", sec, decimal.NewFromInt(rapid.Int64Range(0, 5).Draw(t, "fee")))
			}
		}

		cash, _ := l.Position("pf", domain.CashSecurity)
		pos, _ := l.Position("pf", sec)
		want := begin.Add(pos.RealizedPnL).Sub(pos.Commission)
		if !cash.CurrentValue.Equal(want) {
			t.Fatalf("cash %s, want %s", cash.CurrentValue, want)
		}
	})
}
