package domain

import (
	"fmt"
	"strings"
)

// SecurityID identifies an instrument by its code and the board (venue)
// it trades on. The zero value is invalid.
type SecurityID struct {
	Code  string
	Board string
}

// CashSecurity is the reserved pseudo-security that carries portfolio
// funding, blocked value and aggregated P&L.
var CashSecurity = SecurityID{Code: "MONEY", Board: "CASH"}

// NewSecurityID builds a SecurityID from its parts.
func NewSecurityID(code, board string) SecurityID {
	return SecurityID{Code: code, Board: board}
}

// ParseSecurityID parses the CODE@BOARD text form.
func ParseSecurityID(s string) (SecurityID, error) {
	code, board, ok := strings.Cut(s, "@")
	if !ok || code == "" || board == "" {
		return SecurityID{}, fmt.Errorf("security id %q must have the form CODE@BOARD", s)
	}
	return SecurityID{Code: code, Board: board}, nil
}

// IsZero reports whether the id is unset.
func (s SecurityID) IsZero() bool {
	return s.Code == "" && s.Board == ""
}

// IsCash reports whether s is the cash pseudo-security.
func (s SecurityID) IsCash() bool {
	return s == CashSecurity
}

func (s SecurityID) String() string {
	return s.Code + "@" + s.Board
}

// MarshalText implements encoding.TextMarshaler.
func (s SecurityID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SecurityID) UnmarshalText(b []byte) error {
	id, err := ParseSecurityID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// Less orders security ids by code, then board.
func (s SecurityID) Less(o SecurityID) bool {
	if s.Code != o.Code {
		return s.Code < o.Code
	}
	return s.Board < o.Board
}
