// Package money wraps go-money for currency-safe totals over ingested
// statements, with shopspring/decimal conversions for the precise
// amounts the pipeline carries.
package money

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is a monetary value in a single currency, stored in minor units.
type Money struct {
	m *money.Money
}

// New creates Money from minor units (cents) and an ISO-4217 code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal converts a precise decimal amount to Money, rounding to
// the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	fraction := 2
	if c := money.GetCurrency(currencyCode); c != nil {
		fraction = c.Fraction
	}
	cents := amount.Mul(decimal.New(1, int32(fraction))).Round(0).IntPart()
	return New(cents, currencyCode)
}

// Zero returns a zero value in the given currency.
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the value in minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

// Abs returns the absolute value.
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Absolute()}
}

// Negate flips the sign.
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Negative()}
}

// Add sums two values. A nil operand counts as zero; mismatched
// currencies return an error.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: sum}, nil
}

// ToDecimal converts back to a precise decimal amount.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	fraction := m.m.Currency().Fraction
	return decimal.NewFromInt(m.m.Amount()).Div(decimal.New(1, int32(fraction)))
}

// Display formats with the currency symbol, e.g. "€1,234.56".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// String returns the plain decimal form, e.g. "1234.56".
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(int32(m.fraction()))
}

func (m *Money) fraction() int {
	if m == nil || m.m == nil {
		return 2
	}
	return m.m.Currency().Fraction
}

// Totals accumulates signed statement amounts into separate debit and
// credit sums.
type Totals struct {
	Debits  *Money
	Credits *Money
}

// NewTotals starts empty totals in the given currency.
func NewTotals(currencyCode string) *Totals {
	return &Totals{Debits: Zero(currencyCode), Credits: Zero(currencyCode)}
}

// Accumulate adds one signed amount to the matching side.
func (t *Totals) Accumulate(amount decimal.Decimal, currencyCode string) error {
	m := NewFromDecimal(amount, currencyCode)
	var err error
	if m.IsNegative() {
		t.Debits, err = t.Debits.Add(m)
	} else {
		t.Credits, err = t.Credits.Add(m)
	}
	return err
}

// Net returns credits plus debits (debits are negative).
func (t *Totals) Net() (*Money, error) {
	return t.Credits.Add(t.Debits)
}
