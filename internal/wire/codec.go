package wire

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// TimeLayout is the serialized time format.
const TimeLayout = time.RFC3339Nano

var sentinels = []error{
	domain.ErrPortfolioNotFound,
	domain.ErrSecurityNotFound,
	domain.ErrSecurityNotTradable,
	domain.ErrOrderNotFound,
	domain.ErrDuplicateTransaction,
	domain.ErrInsufficientFunds,
	domain.ErrShortSellingNotAllowed,
	domain.ErrNoLiquidity,
	domain.ErrInjectedRejection,
	domain.ErrCrossedBook,
}

// FromMessage converts a message into its record.
func FromMessage(msg domain.Message) (*Record, error) {
	r := &Record{Type: string(msg.Type()), Time: formatTime(msg.MessageTime())}

	switch m := msg.(type) {
	case *domain.ResetMessage:
	case *domain.FundPositionMessage:
		r.Security = m.SecurityID.String()
		r.Portfolio = m.PortfolioName
		r.BeginValue = domain.FormatDecimal(m.BeginValue)
	case *domain.QuoteMessage:
		r.Security = m.SecurityID.String()
		r.Bids = levels(m.Bids)
		r.Asks = levels(m.Asks)
	case *domain.CandleMessage:
		r.Security = m.SecurityID.String()
		r.Open = domain.FormatDecimal(m.Open)
		r.High = domain.FormatDecimal(m.High)
		r.Low = domain.FormatDecimal(m.Low)
		r.Close = domain.FormatDecimal(m.Close)
		if !m.Volume.IsZero() {
			r.Volume = domain.FormatDecimal(m.Volume)
		}
	case *domain.OrderRegisterMessage:
		r.TransactionID = m.TransactionID
		r.Security = m.SecurityID.String()
		r.Portfolio = m.PortfolioName
		r.Side = string(m.Side)
		r.OrderType = string(m.OrderType)
		if m.Price != nil {
			r.Price = domain.FormatDecimal(*m.Price)
		}
		r.Volume = domain.FormatDecimal(m.Volume)
	case *domain.OrderCancelMessage:
		r.TransactionID = m.TransactionID
		r.OriginalTransactionID = m.OriginalTransactionID
	case *domain.ExecutionMessage:
		r.OriginalTransactionID = m.OriginalTransactionID
		r.OrderID = m.OrderID
		if !m.SecurityID.IsZero() {
			r.Security = m.SecurityID.String()
		}
		r.Portfolio = m.PortfolioName
		r.Side = string(m.Side)
		r.OrderType = string(m.OrderType)
		r.OrderState = string(m.OrderState)
		r.Balance = domain.FormatDecimal(m.Balance)
		if m.HasTrade() {
			r.TradeID = m.TradeID
			r.TradePrice = domain.FormatDecimal(m.TradePrice)
			r.TradeVolume = domain.FormatDecimal(m.TradeVolume)
		}
		if m.Commission != nil {
			r.Commission = domain.FormatDecimal(*m.Commission)
		}
		if m.Error != nil {
			r.Error = m.Error.Error()
		}
	case *domain.PositionChangeMessage:
		r.Security = m.SecurityID.String()
		r.Portfolio = m.PortfolioName
		r.Changes = make(Changes, 0, len(m.Changes))
		for _, c := range m.Changes {
			r.Changes = append(r.Changes, Change{Field: string(c.Field), Value: domain.FormatDecimal(c.Value)})
		}
	default:
		return nil, errors.Errorf("unsupported message type %q", msg.Type())
	}
	return r, nil
}

// Message converts the record back into a message.
func (r *Record) Message() (domain.Message, error) {
	at, err := parseTime(r.Time)
	if err != nil {
		return nil, err
	}

	switch domain.MessageType(r.Type) {
	case domain.MessageTypeReset:
		return &domain.ResetMessage{Time: at}, nil

	case domain.MessageTypeFundPosition:
		sec, err := parseSecurityOrCash(r.Security)
		if err != nil {
			return nil, err
		}
		begin, err := field("begin_value", r.BeginValue)
		if err != nil {
			return nil, err
		}
		return &domain.FundPositionMessage{Time: at, SecurityID: sec, PortfolioName: r.Portfolio, BeginValue: begin}, nil

	case domain.MessageTypeQuote:
		sec, err := parseSecurity(r.Security)
		if err != nil {
			return nil, err
		}
		bids, err := quotes("bids", r.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := quotes("asks", r.Asks)
		if err != nil {
			return nil, err
		}
		return &domain.QuoteMessage{Time: at, SecurityID: sec, Bids: bids, Asks: asks}, nil

	case domain.MessageTypeCandle:
		sec, err := parseSecurity(r.Security)
		if err != nil {
			return nil, err
		}
		m := &domain.CandleMessage{Time: at, SecurityID: sec}
		for _, f := range []struct {
			name  string
			value string
			dst   *decimal.Decimal
		}{
			{"open", r.Open, &m.Open},
			{"high", r.High, &m.High},
			{"low", r.Low, &m.Low},
			{"close", r.Close, &m.Close},
		} {
			if *f.dst, err = field(f.name, f.value); err != nil {
				return nil, err
			}
		}
		if m.Volume, err = optionalField("volume", r.Volume); err != nil {
			return nil, err
		}
		return m, nil

	case domain.MessageTypeOrderRegister:
		sec, err := parseSecurity(r.Security)
		if err != nil {
			return nil, err
		}
		price, err := domain.ParseOptionalDecimal(r.Price)
		if err != nil {
			return nil, errors.Wrap(err, "price")
		}
		volume, err := field("volume", r.Volume)
		if err != nil {
			return nil, err
		}
		orderType := domain.OrderType(r.OrderType)
		if orderType == "" {
			orderType = domain.OrderTypeLimit
			if price == nil {
				orderType = domain.OrderTypeMarket
			}
		}
		return &domain.OrderRegisterMessage{
			Time: at, TransactionID: r.TransactionID, SecurityID: sec, PortfolioName: r.Portfolio,
			Side: domain.Side(r.Side), Price: price, Volume: volume, OrderType: orderType,
		}, nil

	case domain.MessageTypeOrderCancel:
		return &domain.OrderCancelMessage{Time: at, TransactionID: r.TransactionID, OriginalTransactionID: r.OriginalTransactionID}, nil

	case domain.MessageTypeExecution:
		m := &domain.ExecutionMessage{
			Time: at, OriginalTransactionID: r.OriginalTransactionID, OrderID: r.OrderID,
			PortfolioName: r.Portfolio, Side: domain.Side(r.Side), OrderType: domain.OrderType(r.OrderType),
			OrderState: domain.OrderState(r.OrderState), TradeID: r.TradeID,
		}
		if r.Security != "" {
			if m.SecurityID, err = parseSecurityOrCash(r.Security); err != nil {
				return nil, err
			}
		}
		if m.Balance, err = optionalField("balance", r.Balance); err != nil {
			return nil, err
		}
		if m.TradePrice, err = optionalField("trade_price", r.TradePrice); err != nil {
			return nil, err
		}
		if m.TradeVolume, err = optionalField("trade_volume", r.TradeVolume); err != nil {
			return nil, err
		}
		if m.Commission, err = domain.ParseOptionalDecimal(r.Commission); err != nil {
			return nil, errors.Wrap(err, "commission")
		}
		m.Error = ParseError(r.Error)
		return m, nil

	case domain.MessageTypePositionChange:
		sec, err := parseSecurityOrCash(r.Security)
		if err != nil {
			return nil, err
		}
		m := &domain.PositionChangeMessage{Time: at, SecurityID: sec, PortfolioName: r.Portfolio}
		for _, c := range r.Changes {
			v, err := field("changes."+c.Field, c.Value)
			if err != nil {
				return nil, err
			}
			m.Changes = append(m.Changes, domain.PositionChange{Field: domain.PositionField(c.Field), Value: v})
		}
		return m, nil
	}
	return nil, errors.Errorf("unknown message type %q", r.Type)
}

// ParseError maps a serialized error back to its sentinel when it names
// one. Other texts become validation errors; the empty string is nil.
func ParseError(text string) error {
	if text == "" {
		return nil
	}
	for _, s := range sentinels {
		if s.Error() == text {
			return s
		}
	}
	return &domain.ValidationError{Message: text}
}

// Marshal encodes a message as a single JSON object.
func Marshal(msg domain.Message) ([]byte, error) {
	r, err := FromMessage(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Unmarshal decodes a single JSON object into a message.
func Unmarshal(data []byte) (domain.Message, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return r.Message()
}

// Encoder writes messages as newline-delimited JSON.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one message followed by a newline.
func (e *Encoder) Encode(msg domain.Message) error {
	r, err := FromMessage(msg)
	if err != nil {
		return err
	}
	return e.enc.Encode(r)
}

// Decoder reads newline-delimited JSON messages.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode reads the next message. It returns io.EOF at the end of input.
func (d *Decoder) Decode() (domain.Message, error) {
	var r Record
	if err := d.dec.Decode(&r); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "decode record")
	}
	return r.Message()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "time %q", s)
	}
	return t, nil
}

func parseSecurity(s string) (domain.SecurityID, error) {
	id, err := domain.ParseSecurityID(s)
	if err != nil {
		return domain.SecurityID{}, errors.Wrap(err, "security")
	}
	return id, nil
}

// parseSecurityOrCash treats an empty security as the cash pseudo-security.
func parseSecurityOrCash(s string) (domain.SecurityID, error) {
	if s == "" {
		return domain.CashSecurity, nil
	}
	return parseSecurity(s)
}

func field(name, value string) (decimal.Decimal, error) {
	d, err := domain.ParseDecimal(value)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, name)
	}
	return d, nil
}

func optionalField(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return field(name, value)
}

func levels(quotes []domain.Quote) []Level {
	if len(quotes) == 0 {
		return nil
	}
	out := make([]Level, len(quotes))
	for i, q := range quotes {
		out[i] = Level{Price: domain.FormatDecimal(q.Price), Volume: domain.FormatDecimal(q.Volume)}
	}
	return out
}

func quotes(name string, in []Level) ([]domain.Quote, error) {
	out := make([]domain.Quote, 0, len(in))
	for i, l := range in {
		price, err := domain.ParseDecimal(l.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "%s[%d].price", name, i)
		}
		volume, err := domain.ParseDecimal(l.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "%s[%d].volume", name, i)
		}
		out = append(out, domain.Quote{Price: price, Volume: volume})
	}
	return out, nil
}
