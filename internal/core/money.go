// Package core holds the domain model shared by the queue, the router and the
// remote adapters.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a positive monetary amount. Decimal-backed so parsing user input
// like "12,34" never loses precision; cents interop is kept for storage and
// wire formats.
type Money struct {
	Amount decimal.Decimal
}

// MoneyFromCents builds a Money from an integer cent count.
func MoneyFromCents(cents int64) Money {
	return Money{Amount: decimal.New(cents, -2)}
}

// ParseMoney parses a decimal string, accepting both dot and comma as the
// decimal separator.
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Amount: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// Cents returns the amount in cents, half-up rounded on the third decimal.
func (m Money) Cents() int64 {
	return m.Amount.Round(2).Shift(2).IntPart()
}

// String renders the amount with two decimal places.
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

func (m Money) Validate() error {
	if m.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}
