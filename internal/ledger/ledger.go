// Package ledger keeps per-portfolio positions, cost basis, blocked value,
// P&L and commission for the simulation engine, and reports what changed
// while a single input message was processed.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// DefaultAveragePricePrecision is the number of decimal places kept when
// the average price of an extended position is recomputed.
const DefaultAveragePricePrecision int32 = 8

// Options configures margin and short-selling policy.
type Options struct {
	AllowShortSelling     bool
	CheckMargin           bool  // also count unrealized losses against available cash
	AveragePricePrecision int32 // half away from zero rounding of average prices
}

type key struct {
	portfolio string
	security  domain.SecurityID
}

type portfolio struct {
	name       string
	cash       *Position
	securities []domain.SecurityID // creation order
}

// Ledger is not safe for concurrent use; the engine owns it exclusively.
type Ledger struct {
	opts       Options
	portfolios map[string]*portfolio
	positions  map[key]*Position
	lastPrice  map[domain.SecurityID]decimal.Decimal

	touched []key
	before  map[key]Position
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	if opts.AveragePricePrecision <= 0 {
		opts.AveragePricePrecision = DefaultAveragePricePrecision
	}
	l := &Ledger{opts: opts}
	l.Reset()
	return l
}

// Reset drops every portfolio, position and observed price.
func (l *Ledger) Reset() {
	l.portfolios = make(map[string]*portfolio)
	l.positions = make(map[key]*Position)
	l.lastPrice = make(map[domain.SecurityID]decimal.Decimal)
	l.touched = nil
	l.before = make(map[key]Position)
}

// Options returns the ledger's policy.
func (l *Ledger) Options() Options {
	return l.opts
}

// Fund sets the cash funding of a portfolio, creating it if needed.
func (l *Ledger) Fund(name string, beginValue decimal.Decimal) {
	p := l.portfolio(name)
	l.touch(key{portfolio: name, security: domain.CashSecurity})
	p.cash.BeginValue = beginValue
	l.refreshCash(p)
}

// HasPortfolio reports whether the portfolio has been funded.
func (l *Ledger) HasPortfolio(name string) bool {
	_, ok := l.portfolios[name]
	return ok
}

// Position returns a copy of the position for the pair.
func (l *Ledger) Position(portfolioName string, security domain.SecurityID) (Position, bool) {
	if security.IsCash() {
		p, ok := l.portfolios[portfolioName]
		if !ok {
			return Position{}, false
		}
		return *p.cash, true
	}
	pos, ok := l.positions[key{portfolio: portfolioName, security: security}]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of every position ordered by portfolio name,
// with the cash position first and securities sorted by id.
func (l *Ledger) Positions() []Position {
	names := make([]string, 0, len(l.portfolios))
	for name := range l.portfolios {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Position
	for _, name := range names {
		p := l.portfolios[name]
		out = append(out, *p.cash)
		secs := append([]domain.SecurityID(nil), p.securities...)
		sort.Slice(secs, func(i, j int) bool { return secs[i].Less(secs[j]) })
		for _, s := range secs {
			out = append(out, *l.positions[key{portfolio: name, security: s}])
		}
	}
	return out
}

// LastPrice returns the last observed trade price for a security.
func (l *Ledger) LastPrice(security domain.SecurityID) (decimal.Decimal, bool) {
	p, ok := l.lastPrice[security]
	return p, ok
}

// ObservePrice records an external trade price (for example a candle touch).
func (l *Ledger) ObservePrice(security domain.SecurityID, price decimal.Decimal) {
	l.lastPrice[security] = price
}

// ApplyTrade books a fill using weighted-average cost. Extending a position
// re-averages, reducing it realizes P&L against the average price, and a
// flip opens the remainder at the fill price.
func (l *Ledger) ApplyTrade(portfolioName string, security domain.SecurityID, side domain.Side, price, volume decimal.Decimal) {
	pos := l.position(portfolioName, security)
	l.lastPrice[security] = price

	old := pos.CurrentValue
	signed := volume.Mul(side.Sign())
	next := old.Add(signed)

	switch {
	case old.IsZero() || old.Sign() == signed.Sign():
		cost := pos.AveragePrice.Mul(old.Abs()).Add(price.Mul(volume))
		pos.AveragePrice = cost.DivRound(next.Abs(), l.opts.AveragePricePrecision)
	default:
		closed := decimal.Min(old.Abs(), volume)
		pnl := price.Sub(pos.AveragePrice).Mul(closed)
		if old.IsNegative() {
			pnl = pnl.Neg()
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
		switch {
		case next.IsZero():
			pos.AveragePrice = decimal.Zero
		case next.Sign() != old.Sign():
			pos.AveragePrice = price
		}
	}
	pos.CurrentValue = next
	if next.IsZero() {
		pos.UnrealizedPnL = decimal.Zero
	}
	l.refreshCash(l.portfolios[portfolioName])
}

// Block reserves amount against the pair's blocked value.
func (l *Ledger) Block(portfolioName string, security domain.SecurityID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	pos := l.position(portfolioName, security)
	pos.BlockedValue = pos.BlockedValue.Add(amount)
	l.refreshCash(l.portfolios[portfolioName])
}

// Release frees up to amount of the pair's blocked value. Blocked value
// never goes negative.
func (l *Ledger) Release(portfolioName string, security domain.SecurityID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	pos, ok := l.positions[key{portfolio: portfolioName, security: security}]
	if !ok {
		return
	}
	l.touch(key{portfolio: portfolioName, security: security})
	l.touch(key{portfolio: portfolioName, security: domain.CashSecurity})
	pos.BlockedValue = pos.BlockedValue.Sub(amount)
	if pos.BlockedValue.IsNegative() {
		pos.BlockedValue = decimal.Zero
	}
	l.refreshCash(l.portfolios[portfolioName])
}

// AddCommission accrues a commission charge on the pair; the portfolio's
// cash is netted by the same amount.
func (l *Ledger) AddCommission(portfolioName string, security domain.SecurityID, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	pos := l.position(portfolioName, security)
	pos.Commission = pos.Commission.Add(amount)
	l.refreshCash(l.portfolios[portfolioName])
}

// MarkToMarket recomputes unrealized P&L of every open position on the
// security from the reference price.
func (l *Ledger) MarkToMarket(security domain.SecurityID, ref decimal.Decimal) {
	for _, name := range l.portfolioNames() {
		k := key{portfolio: name, security: security}
		pos, ok := l.positions[k]
		if !ok || pos.IsFlat() {
			continue
		}
		unrealized := ref.Sub(pos.AveragePrice).Mul(pos.CurrentValue)
		if unrealized.Equal(pos.UnrealizedPnL) {
			continue
		}
		l.touch(k)
		l.touch(key{portfolio: name, security: domain.CashSecurity})
		pos.UnrealizedPnL = unrealized
		l.refreshCash(l.portfolios[name])
	}
}

// Available returns the capital a portfolio can still commit to new
// opening orders: cash less blocked value less the cost of every open
// position. With CheckMargin, unrealized losses are deducted as well.
func (l *Ledger) Available(portfolioName string) decimal.Decimal {
	p, ok := l.portfolios[portfolioName]
	if !ok {
		return decimal.Zero
	}
	available := p.cash.CurrentValue.Sub(p.cash.BlockedValue)
	for _, s := range p.securities {
		pos := l.positions[key{portfolio: portfolioName, security: s}]
		available = available.Sub(pos.Exposure())
		if l.opts.CheckMargin && pos.UnrealizedPnL.IsNegative() {
			available = available.Add(pos.UnrealizedPnL)
		}
	}
	return available
}

// OpeningVolume returns the part of an order of the given side and volume
// that would open or extend exposure, given pending volume of other active
// orders on the same side that already claim the closable position.
func (l *Ledger) OpeningVolume(portfolioName string, security domain.SecurityID, side domain.Side, volume, pendingSameSide decimal.Decimal) decimal.Decimal {
	cur := decimal.Zero
	if pos, ok := l.positions[key{portfolio: portfolioName, security: security}]; ok {
		cur = pos.CurrentValue
	}

	closable := decimal.Zero
	switch {
	case side == domain.SideBuy && cur.IsNegative():
		closable = cur.Neg()
	case side == domain.SideSell && cur.IsPositive():
		closable = cur
	}
	closable = closable.Sub(pendingSameSide)
	if closable.IsNegative() {
		closable = decimal.Zero
	}

	opening := volume.Sub(closable)
	if opening.IsNegative() {
		return decimal.Zero
	}
	return opening
}

// Changes returns one position-change message per pair touched since the
// previous call, in first-touch order, with only the fields that changed.
// Pairs without effective changes are omitted. Tracking restarts afterwards.
func (l *Ledger) Changes(at time.Time) []*domain.PositionChangeMessage {
	var out []*domain.PositionChangeMessage
	for _, k := range l.touched {
		before := l.before[k]
		current, ok := l.Position(k.portfolio, k.security)
		if !ok {
			continue
		}
		changes := current.diff(&before)
		if len(changes) == 0 {
			continue
		}
		out = append(out, &domain.PositionChangeMessage{
			Time:          at,
			SecurityID:    k.security,
			PortfolioName: k.portfolio,
			Changes:       changes,
		})
	}
	l.touched = l.touched[:0]
	l.before = make(map[key]Position)
	return out
}

func (l *Ledger) portfolio(name string) *portfolio {
	p, ok := l.portfolios[name]
	if !ok {
		p = &portfolio{
			name: name,
			cash: &Position{PortfolioName: name, SecurityID: domain.CashSecurity},
		}
		l.portfolios[name] = p
	}
	return p
}

// position returns the mutable position for the pair, creating it lazily,
// and marks both the pair and its portfolio cash as touched.
func (l *Ledger) position(portfolioName string, security domain.SecurityID) *Position {
	p := l.portfolio(portfolioName)
	k := key{portfolio: portfolioName, security: security}
	l.touch(k)
	l.touch(key{portfolio: portfolioName, security: domain.CashSecurity})

	pos, ok := l.positions[k]
	if !ok {
		pos = &Position{PortfolioName: portfolioName, SecurityID: security}
		l.positions[k] = pos
		p.securities = append(p.securities, security)
	}
	return pos
}

func (l *Ledger) touch(k key) {
	if _, ok := l.before[k]; ok {
		return
	}
	var snapshot Position
	if current, ok := l.Position(k.portfolio, k.security); ok {
		snapshot = current
	}
	l.before[k] = snapshot
	l.touched = append(l.touched, k)
}

// refreshCash recomputes the cash aggregates of a portfolio.
func (l *Ledger) refreshCash(p *portfolio) {
	if p == nil {
		return
	}
	var blocked, realized, unrealized, commission decimal.Decimal
	for _, s := range p.securities {
		pos := l.positions[key{portfolio: p.name, security: s}]
		blocked = blocked.Add(pos.BlockedValue)
		realized = realized.Add(pos.RealizedPnL)
		unrealized = unrealized.Add(pos.UnrealizedPnL)
		commission = commission.Add(pos.Commission)
	}
	p.cash.BlockedValue = blocked
	p.cash.RealizedPnL = realized
	p.cash.UnrealizedPnL = unrealized
	p.cash.Commission = commission
	p.cash.CurrentValue = p.cash.BeginValue.Add(realized).Sub(commission)
}

func (l *Ledger) portfolioNames() []string {
	names := make([]string, 0, len(l.portfolios))
	for name := range l.portfolios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
