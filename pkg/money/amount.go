// Package money provides the fixed-point amount type used for every billed value.
//
// Amounts are persisted as exact decimal text (numeric(12,2)) and never pass through
// float64. Rounding is half-up to two places and is applied once per line item.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for EUR amounts
const Places = 2

// Amount is a two-decimal fixed-point money value
type Amount struct {
	d decimal.Decimal
}

// Zero returns the zero amount
func Zero() Amount {
	return Amount{d: decimal.Zero}
}

// Parse parses a decimal string such as "30.00" or "12.5"
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromCents builds an amount from an integer number of cents
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -Places)}
}

// Add returns a + b without rounding
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Round rounds half-up to two decimal places.
// shopspring rounds half away from zero, which is half-up for the non-negative
// values billed here.
func (a Amount) Round() Amount {
	return Amount{d: a.d.Round(Places)}
}

// IsZero reports whether the amount is exactly zero
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// IsNegative reports whether the amount is strictly less than zero
func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// Equal compares two amounts by value, so "30" equals "30.00"
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// Cmp returns -1, 0 or +1
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Decimal exposes the underlying decimal value
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// String renders the amount with exactly two decimals, "." as separator and no grouping.
// The output is byte-identical for equal inputs.
func (a Amount) String() string {
	return a.d.StringFixed(Places)
}

// Sum adds all amounts exactly and rounds nothing
func Sum(amounts ...Amount) Amount {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON renders the amount as a JSON string ("30.00")
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Scan implements sql.Scanner for numeric columns
func (a *Amount) Scan(src any) error {
	if src == nil {
		return fmt.Errorf("cannot scan NULL into Amount")
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("failed to scan amount: %w", err)
	}
	a.d = d
	return nil
}

// Value implements driver.Valuer, storing the fixed two-decimal text
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// NullAmount is an Amount that may be NULL in the database
type NullAmount struct {
	Amount Amount
	Valid  bool
}

// Scan implements sql.Scanner
func (n *NullAmount) Scan(src any) error {
	if src == nil {
		n.Amount, n.Valid = Zero(), false
		return nil
	}
	n.Valid = true
	return n.Amount.Scan(src)
}

// Value implements driver.Valuer
func (n NullAmount) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Amount.Value()
}

// Ptr returns nil for NULL, otherwise a pointer to a copy of the amount
func (n NullAmount) Ptr() *Amount {
	if !n.Valid {
		return nil
	}
	a := n.Amount
	return &a
}

// NullFrom wraps an optional amount
func NullFrom(a *Amount) NullAmount {
	if a == nil {
		return NullAmount{}
	}
	return NullAmount{Amount: *a, Valid: true}
}
