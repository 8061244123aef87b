// Package wire converts engine messages to and from their serialized form.
// One Record type with a "type" discriminator carries every message kind;
// decimals travel as strings and position changes keep their field order,
// so equal message streams always encode to identical bytes.
package wire

// Level is one serialized (price, volume) book level.
type Level struct {
	Price  string `json:"price" yaml:"price"`
	Volume string `json:"volume" yaml:"volume"`
}

// Record is the serialized form of every input and output message.
// Fields that do not apply to a message kind are left empty.
type Record struct {
	Type                  string  `json:"type" yaml:"type"`
	Time                  string  `json:"time,omitempty" yaml:"time,omitempty"`
	TransactionID         int64   `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	OriginalTransactionID int64   `json:"original_transaction_id,omitempty" yaml:"original_transaction_id,omitempty"`
	OrderID               int64   `json:"order_id,omitempty" yaml:"order_id,omitempty"`
	Security              string  `json:"security,omitempty" yaml:"security,omitempty"`
	Portfolio             string  `json:"portfolio,omitempty" yaml:"portfolio,omitempty"`
	Side                  string  `json:"side,omitempty" yaml:"side,omitempty"`
	OrderType             string  `json:"order_type,omitempty" yaml:"order_type,omitempty"`
	OrderState            string  `json:"order_state,omitempty" yaml:"order_state,omitempty"`
	Price                 string  `json:"price,omitempty" yaml:"price,omitempty"`
	Volume                string  `json:"volume,omitempty" yaml:"volume,omitempty"`
	Balance               string  `json:"balance,omitempty" yaml:"balance,omitempty"`
	BeginValue            string  `json:"begin_value,omitempty" yaml:"begin_value,omitempty"`
	Bids                  []Level `json:"bids,omitempty" yaml:"bids,omitempty"`
	Asks                  []Level `json:"asks,omitempty" yaml:"asks,omitempty"`
	Open                  string  `json:"open,omitempty" yaml:"open,omitempty"`
	High                  string  `json:"high,omitempty" yaml:"high,omitempty"`
	Low                   string  `json:"low,omitempty" yaml:"low,omitempty"`
	Close                 string  `json:"close,omitempty" yaml:"close,omitempty"`
	TradeID               int64   `json:"trade_id,omitempty" yaml:"trade_id,omitempty"`
	TradePrice            string  `json:"trade_price,omitempty" yaml:"trade_price,omitempty"`
	TradeVolume           string  `json:"trade_volume,omitempty" yaml:"trade_volume,omitempty"`
	Commission            string  `json:"commission,omitempty" yaml:"commission,omitempty"`
	Error                 string  `json:"error,omitempty" yaml:"error,omitempty"`
	Changes               Changes `json:"changes,omitempty" yaml:"changes,omitempty"`
}
