// Package engine implements the deterministic market simulation engine:
// quote books, matching, the order registry and the orchestrating Emulator.
package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/marketsim/internal/commission"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/fault"
	"github.com/efreitasn/marketsim/internal/ledger"
	"github.com/efreitasn/marketsim/internal/store"
)

// Options configures an Emulator.
type Options struct {
	// VerifyMode disables every randomized behaviour so output is a pure
	// function of the input sequence.
	VerifyMode bool
	Fault      fault.Config
	Ledger     ledger.Options
	// Securities are tradable before any market data is seen for them.
	Securities []domain.SecurityID
	Commission commission.Evaluator
	Logger     logrus.FieldLogger
	Output     OutputFunc
}

// Emulator processes input messages one at a time and emits executions and
// position changes through Options.Output. It is not safe for concurrent
// use.
type Emulator struct {
	opts Options
	log  logrus.FieldLogger

	books      *BookManager
	registry   *Registry
	trades     *store.TradeStore
	ledger     *ledger.Ledger
	injector   *fault.Injector
	securities *domain.SecurityRegistry
	emit       *emitter

	lastTradeID int64
}

// New creates an Emulator.
func New(opts Options) *Emulator {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := ledger.New(opts.Ledger)
	inj := fault.NewInjector(opts.Fault, opts.VerifyMode)

	return &Emulator{
		opts:       opts,
		log:        log,
		books:      NewBookManager(),
		registry:   NewRegistry(store.NewOrderStore()),
		trades:     store.NewTradeStore(),
		ledger:     l,
		injector:   inj,
		securities: domain.NewSecurityRegistry(opts.Securities...),
		emit:       newEmitter(opts.Output, opts.Commission, l, inj),
	}
}

// Process handles one input message. Deferred output that is due at the
// message time is emitted first. Every failure resolves to an emitted
// message or a logged warning; Process never panics on bad input.
func (e *Emulator) Process(msg domain.Message) {
	now := msg.MessageTime()
	e.emit.queue.Flush(now)

	switch m := msg.(type) {
	case *domain.ResetMessage:
		e.reset()
	case *domain.FundPositionMessage:
		e.fund(m)
	case *domain.QuoteMessage:
		e.quote(m)
	case *domain.CandleMessage:
		e.candle(m)
	case *domain.OrderRegisterMessage:
		e.register(m)
	case *domain.OrderCancelMessage:
		e.cancel(m)
	default:
		e.log.WithField("type", msg.Type()).Warn("ignoring unsupported message")
	}
}

// Flush emits deferred output due at or before now.
func (e *Emulator) Flush(now time.Time) int {
	return e.emit.queue.Flush(now)
}

// Drain emits all deferred output immediately.
func (e *Emulator) Drain() int {
	return e.emit.queue.Drain()
}

// Discard drops all deferred output.
func (e *Emulator) Discard() int {
	return e.emit.queue.Discard()
}

// PendingBatches returns the number of deferred output batches.
func (e *Emulator) PendingBatches() int {
	return e.emit.queue.Len()
}

// Queue exposes the delay queue so a host can flush it on a wall clock.
func (e *Emulator) Queue() *fault.DelayQueue {
	return e.emit.queue
}

func (e *Emulator) reset() {
	e.books.Reset()
	e.registry.Reset()
	e.trades.Reset()
	e.ledger.Reset()
	e.emit.discard()
	e.injector.Reseed()
	e.securities = domain.NewSecurityRegistry(e.opts.Securities...)
	e.lastTradeID = 0
	e.log.Debug("engine reset")
}

func (e *Emulator) fund(m *domain.FundPositionMessage) {
	if !m.SecurityID.IsCash() {
		e.log.WithFields(logrus.Fields{
			"security":  m.SecurityID.String(),
			"portfolio": m.PortfolioName,
		}).Warn("ignoring funding for a non-cash security")
		return
	}
	if m.PortfolioName == "" {
		e.log.Warn("ignoring funding without portfolio name")
		return
	}
	e.ledger.Fund(m.PortfolioName, m.BeginValue)
	e.emit.finish(m.Time, domain.CashSecurity)
}

func (e *Emulator) quote(m *domain.QuoteMessage) {
	if m.SecurityID.IsCash() || m.SecurityID.IsZero() {
		e.log.WithField("security", m.SecurityID.String()).Warn("ignoring quotes for a non-tradable security")
		return
	}
	if err := e.books.ApplyQuotes(m.SecurityID, m.Bids, m.Asks); err != nil {
		e.log.WithFields(logrus.Fields{
			"security": m.SecurityID.String(),
			"time":     m.Time,
		}).WithError(err).Warn("dropping quote message")
		return
	}
	e.securities.Register(m.SecurityID)
	e.reevaluate(m.SecurityID, m.Time)
	e.markToMarket(m.SecurityID)
	e.emit.finish(m.Time, m.SecurityID)
}

// candle replays the bar as four touches: open, high, low, close. Touches
// only live while the bar is replayed; afterwards the book is empty and the
// close is kept as the last price.
func (e *Emulator) candle(m *domain.CandleMessage) {
	if m.SecurityID.IsCash() || m.SecurityID.IsZero() {
		e.log.WithField("security", m.SecurityID.String()).Warn("ignoring candle for a non-tradable security")
		return
	}
	e.securities.Register(m.SecurityID)
	for _, price := range []decimal.Decimal{m.Open, m.High, m.Low, m.Close} {
		e.books.ApplyTouch(m.SecurityID, price, m.Volume)
		e.ledger.ObservePrice(m.SecurityID, price)
		e.reevaluate(m.SecurityID, m.Time)
		e.markToMarket(m.SecurityID)
	}
	e.books.ClearTouch(m.SecurityID)
	e.emit.finish(m.Time, m.SecurityID)
}

// reevaluate matches every resting order of the security against its
// current book.
func (e *Emulator) reevaluate(security domain.SecurityID, now time.Time) {
	book, ok := e.books.Get(security)
	if !ok {
		return
	}
	for _, o := range e.registry.Resting(security) {
		if o.State.IsTerminal() {
			continue
		}
		fills, _, err := TryMatch(o, book)
		if err != nil {
			continue
		}
		for _, f := range fills {
			e.fill(o, f, true, now)
		}
	}
}

func (e *Emulator) markToMarket(security domain.SecurityID) {
	ref, ok := decimal.Zero, false
	if book, exists := e.books.Get(security); exists {
		ref, ok = book.Mid()
	}
	if !ok {
		ref, ok = e.ledger.LastPrice(security)
	}
	if ok {
		e.ledger.MarkToMarket(security, ref)
	}
}

// fill books one trade of o. Resting orders release the value blocked for
// the filled volume.
func (e *Emulator) fill(o *domain.SimulatedOrder, f Fill, resting bool, now time.Time) {
	e.lastTradeID++
	trade := &domain.Trade{
		TradeID:       e.lastTradeID,
		OrderID:       o.OrderID,
		TransactionID: o.TransactionID,
		SecurityID:    o.SecurityID,
		PortfolioName: o.PortfolioName,
		Side:          o.Side,
		Price:         f.Price,
		Volume:        f.Volume,
		Time:          now,
	}
	e.trades.Append(trade)

	o.Balance = o.Balance.Sub(f.Volume)
	if !o.Balance.IsPositive() {
		o.Balance = decimal.Zero
		o.State = domain.OrderStateDone
		if resting {
			e.registry.Unrest(o)
		}
	}

	e.ledger.ApplyTrade(o.PortfolioName, o.SecurityID, o.Side, f.Price, f.Volume)
	if resting {
		e.ledger.Release(o.PortfolioName, o.SecurityID, o.Price.Mul(f.Volume))
	}

	exec := e.orderExecution(o, now)
	exec.TradeID = trade.TradeID
	exec.TradePrice = trade.Price
	exec.TradeVolume = trade.Volume
	e.emit.execution(exec)
}

func (e *Emulator) orderExecution(o *domain.SimulatedOrder, now time.Time) *domain.ExecutionMessage {
	return &domain.ExecutionMessage{
		Time:                  now,
		OriginalTransactionID: o.TransactionID,
		OrderID:               o.OrderID,
		SecurityID:            o.SecurityID,
		PortfolioName:         o.PortfolioName,
		Side:                  o.Side,
		OrderType:             o.Type,
		OrderState:            o.State,
		Balance:               o.Balance,
	}
}

func (e *Emulator) register(m *domain.OrderRegisterMessage) {
	if err := e.validate(m); err != nil {
		e.reject(m, err)
		return
	}
	if e.injector.ShouldReject() {
		e.reject(m, domain.ErrInjectedRejection)
		return
	}
	if err := e.checkCapacity(m); err != nil {
		e.reject(m, err)
		return
	}

	o := &domain.SimulatedOrder{
		TransactionID:  m.TransactionID,
		SecurityID:     m.SecurityID,
		PortfolioName:  m.PortfolioName,
		Side:           m.Side,
		Price:          m.Price,
		Volume:         m.Volume,
		Balance:        m.Volume,
		Type:           m.OrderType,
		State:          domain.OrderStatePending,
		RegisteredTime: m.Time,
	}
	if err := e.registry.Add(o); err != nil {
		e.reject(m, err)
		return
	}
	o.State = domain.OrderStateActive
	e.emit.execution(e.orderExecution(o, m.Time))

	// validate already rejected market orders without opposite liquidity,
	// the only case TryMatch fails on.
	book, _ := e.books.Get(m.SecurityID)
	fills, remaining, _ := TryMatch(o, book)
	for _, f := range fills {
		e.fill(o, f, false, m.Time)
	}

	if remaining.IsPositive() {
		switch o.Type {
		case domain.OrderTypeLimit:
			e.registry.Rest(o)
			e.ledger.Block(o.PortfolioName, o.SecurityID, o.Price.Mul(remaining))
		case domain.OrderTypeMarket:
			// depth exhausted: the residual is cancelled
			o.State = domain.OrderStateDone
			e.emit.execution(e.orderExecution(o, m.Time))
		}
	}
	if len(fills) > 0 {
		e.markToMarket(m.SecurityID)
	}
	e.emit.finish(m.Time, m.SecurityID)
}

func (e *Emulator) validate(m *domain.OrderRegisterMessage) error {
	switch {
	case e.registry.Known(m.TransactionID):
		return domain.ErrDuplicateTransaction
	case m.SecurityID.IsCash():
		return domain.ErrSecurityNotTradable
	case !e.securities.Exists(m.SecurityID):
		return domain.ErrSecurityNotFound
	case !e.ledger.HasPortfolio(m.PortfolioName):
		return domain.ErrPortfolioNotFound
	case m.Side != domain.SideBuy && m.Side != domain.SideSell:
		return &domain.ValidationError{Message: "side must be buy or sell"}
	case !m.Volume.IsPositive():
		return &domain.ValidationError{Message: "volume must be positive"}
	}

	switch m.OrderType {
	case domain.OrderTypeLimit:
		if m.Price == nil || !m.Price.IsPositive() {
			return &domain.ValidationError{Message: "limit order requires a positive price"}
		}
	case domain.OrderTypeMarket:
		if m.Price != nil {
			return &domain.ValidationError{Message: "market order must not carry a price"}
		}
		book, ok := e.books.Get(m.SecurityID)
		if !ok {
			return domain.ErrNoLiquidity
		}
		if _, ok := book.Best(m.Side.Opposite()); !ok {
			return domain.ErrNoLiquidity
		}
	default:
		return &domain.ValidationError{Message: "order type must be limit or market"}
	}
	return nil
}

// checkCapacity verifies that the portfolio can fund the part of the order
// that opens or extends exposure.
func (e *Emulator) checkCapacity(m *domain.OrderRegisterMessage) error {
	pending := e.registry.PendingVolume(m.PortfolioName, m.SecurityID, m.Side)
	opening := e.ledger.OpeningVolume(m.PortfolioName, m.SecurityID, m.Side, m.Volume, pending)
	if !opening.IsPositive() {
		return nil
	}
	if m.Side == domain.SideSell && !e.ledger.Options().AllowShortSelling {
		return domain.ErrShortSellingNotAllowed
	}

	price := decimal.Zero
	if m.Price != nil {
		price = *m.Price
	} else if book, ok := e.books.Get(m.SecurityID); ok {
		if best, ok := book.Best(m.Side.Opposite()); ok {
			price = best.Price
		}
	}
	if price.Mul(opening).GreaterThan(e.ledger.Available(m.PortfolioName)) {
		return domain.ErrInsufficientFunds
	}
	return nil
}

func (e *Emulator) reject(m *domain.OrderRegisterMessage, err error) {
	e.log.WithFields(logrus.Fields{
		"transaction_id": m.TransactionID,
		"security":       m.SecurityID.String(),
		"portfolio":      m.PortfolioName,
	}).WithError(err).Debug("order rejected")

	e.emit.execution(&domain.ExecutionMessage{
		Time:                  m.Time,
		OriginalTransactionID: m.TransactionID,
		SecurityID:            m.SecurityID,
		PortfolioName:         m.PortfolioName,
		Side:                  m.Side,
		OrderType:             m.OrderType,
		OrderState:            domain.OrderStateFailed,
		Balance:               m.Volume,
		Error:                 err,
	})
	e.emit.finish(m.Time, m.SecurityID)
}

func (e *Emulator) cancel(m *domain.OrderCancelMessage) {
	o, err := e.registry.Get(m.OriginalTransactionID)
	if err != nil {
		e.log.WithField("original_transaction_id", m.OriginalTransactionID).Debug("cancel for unknown order")
		e.emit.execution(&domain.ExecutionMessage{
			Time:                  m.Time,
			OriginalTransactionID: m.TransactionID,
			OrderState:            domain.OrderStateFailed,
			Error:                 domain.ErrOrderNotFound,
		})
		e.emit.finish(m.Time, domain.SecurityID{})
		return
	}
	if o.State.IsTerminal() {
		return
	}

	e.registry.Unrest(o)
	if o.Price != nil {
		e.ledger.Release(o.PortfolioName, o.SecurityID, o.Price.Mul(o.Balance))
	}
	o.State = domain.OrderStateDone
	e.emit.execution(e.orderExecution(o, m.Time))
	e.emit.finish(m.Time, o.SecurityID)
}
