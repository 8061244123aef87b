package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType discriminates the messages flowing in and out of the engine.
type MessageType string

const (
	MessageTypeReset          MessageType = "reset"
	MessageTypeFundPosition   MessageType = "fund_position"
	MessageTypeQuote          MessageType = "quote"
	MessageTypeCandle         MessageType = "candle"
	MessageTypeOrderRegister  MessageType = "order_register"
	MessageTypeOrderCancel    MessageType = "order_cancel"
	MessageTypeExecution      MessageType = "execution"
	MessageTypePositionChange MessageType = "position_change"
)

// Message is implemented by every input and output message.
type Message interface {
	Type() MessageType
	MessageTime() time.Time
}

// Quote is a single (price, volume) book level.
type Quote struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// ResetMessage clears every book, order and position of the engine.
type ResetMessage struct {
	Time time.Time
}

// FundPositionMessage seeds a portfolio's cash. SecurityID must be CashSecurity.
type FundPositionMessage struct {
	Time          time.Time
	SecurityID    SecurityID
	PortfolioName string
	BeginValue    decimal.Decimal
}

// QuoteMessage replaces the order book snapshot of a security.
type QuoteMessage struct {
	Time       time.Time
	SecurityID SecurityID
	Bids       []Quote
	Asks       []Quote
}

// CandleMessage is a coarse liquidity proxy translated into price touches.
type CandleMessage struct {
	Time       time.Time
	SecurityID SecurityID
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal // zero means unbounded touch liquidity
}

// OrderRegisterMessage asks the engine to register a new order.
type OrderRegisterMessage struct {
	Time          time.Time
	TransactionID int64
	SecurityID    SecurityID
	PortfolioName string
	Side          Side
	Price         *decimal.Decimal // nil for market orders
	Volume        decimal.Decimal
	OrderType     OrderType
}

// OrderCancelMessage asks the engine to cancel a previously registered order.
type OrderCancelMessage struct {
	Time                  time.Time
	TransactionID         int64
	OriginalTransactionID int64
}

// ExecutionMessage reports an order state transition, optionally with a trade.
// TradeID is zero when the message carries no trade.
type ExecutionMessage struct {
	Time                  time.Time
	OriginalTransactionID int64
	OrderID               int64 // zero when the order never got an id
	SecurityID            SecurityID
	PortfolioName         string
	Side                  Side
	OrderType             OrderType
	OrderState            OrderState
	Balance               decimal.Decimal
	TradeID               int64
	TradePrice            decimal.Decimal
	TradeVolume           decimal.Decimal
	Commission            *decimal.Decimal
	Error                 error
}

// HasTrade reports whether the execution carries trade fields.
func (m *ExecutionMessage) HasTrade() bool {
	return m.TradeID != 0
}

// PositionField names a field of an account position.
type PositionField string

const (
	FieldBeginValue    PositionField = "BeginValue"
	FieldCurrentValue  PositionField = "CurrentValue"
	FieldAveragePrice  PositionField = "AveragePrice"
	FieldBlockedValue  PositionField = "BlockedValue"
	FieldRealizedPnL   PositionField = "RealizedPnL"
	FieldUnrealizedPnL PositionField = "UnrealizedPnL"
	FieldCommission    PositionField = "Commission"
)

// PositionFieldOrder is the fixed order of fields inside a position change.
var PositionFieldOrder = []PositionField{
	FieldBeginValue,
	FieldCurrentValue,
	FieldAveragePrice,
	FieldBlockedValue,
	FieldRealizedPnL,
	FieldUnrealizedPnL,
	FieldCommission,
}

// PositionChange is one changed field of a position.
type PositionChange struct {
	Field PositionField
	Value decimal.Decimal
}

// PositionChangeMessage carries the changed fields of one
// (portfolio, security) position, ordered by PositionFieldOrder.
type PositionChangeMessage struct {
	Time          time.Time
	SecurityID    SecurityID
	PortfolioName string
	Changes       []PositionChange
}

// Get returns the value of field if it is part of the change set.
func (m *PositionChangeMessage) Get(field PositionField) (decimal.Decimal, bool) {
	for _, c := range m.Changes {
		if c.Field == field {
			return c.Value, true
		}
	}
	return decimal.Zero, false
}

func (*ResetMessage) Type() MessageType          { return MessageTypeReset }
func (*FundPositionMessage) Type() MessageType   { return MessageTypeFundPosition }
func (*QuoteMessage) Type() MessageType          { return MessageTypeQuote }
func (*CandleMessage) Type() MessageType         { return MessageTypeCandle }
func (*OrderRegisterMessage) Type() MessageType  { return MessageTypeOrderRegister }
func (*OrderCancelMessage) Type() MessageType    { return MessageTypeOrderCancel }
func (*ExecutionMessage) Type() MessageType      { return MessageTypeExecution }
func (*PositionChangeMessage) Type() MessageType { return MessageTypePositionChange }

func (m *ResetMessage) MessageTime() time.Time          { return m.Time }
func (m *FundPositionMessage) MessageTime() time.Time   { return m.Time }
func (m *QuoteMessage) MessageTime() time.Time          { return m.Time }
func (m *CandleMessage) MessageTime() time.Time         { return m.Time }
func (m *OrderRegisterMessage) MessageTime() time.Time  { return m.Time }
func (m *OrderCancelMessage) MessageTime() time.Time    { return m.Time }
func (m *ExecutionMessage) MessageTime() time.Time      { return m.Time }
func (m *PositionChangeMessage) MessageTime() time.Time { return m.Time }
