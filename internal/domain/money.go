package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimalPlaces bounds the precision accepted for prices and volumes
// on the wire.
const MaxDecimalPlaces = 12

// ParseDecimal parses a decimal value from its text form. It rejects empty
// input and values with more than MaxDecimalPlaces fractional digits.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("decimal value is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", s)
	}
	if -d.Exponent() > MaxDecimalPlaces {
		return decimal.Zero, fmt.Errorf("decimal %q has more than %d decimal places", s, MaxDecimalPlaces)
	}
	return d, nil
}

// ParseOptionalDecimal parses s, returning nil for an empty string.
func ParseOptionalDecimal(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FormatDecimal renders d without trailing zeros.
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}
