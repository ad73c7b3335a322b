package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the smallest currency unit.
// Stored amounts are integer-only; rates and quantities go through
// decimal.Decimal and are rounded back to the minor unit.
//
// A zero Money with an empty currency is a neutral value: it can be
// combined with Money of any currency.
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "cad"
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// CAD creates a Money value in Canadian Dollars (cents).
func CAD(cents int64) Money { return Money{Amount: cents, Currency: "cad"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// New creates a Money value from a minor-unit amount.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// FromDecimal converts an amount in major units (dollars) into Money,
// rounding half away from zero to the currency's minor unit.
func FromDecimal(major decimal.Decimal, currency string) Money {
	currency = strings.ToLower(currency)
	scale := int32(currencyDecimals(currency))
	minor := major.Shift(scale).Round(0)
	return Money{Amount: minor.IntPart(), Currency: currency}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(currencyDecimals(m.Currency)))
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	cur := m.currencyWith(other)
	return Money{Amount: m.Amount + other.Amount, Currency: cur}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	cur := m.currencyWith(other)
	return Money{Amount: m.Amount - other.Amount, Currency: cur}
}

// Multiply multiplies the Money by an integer quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// MulDecimal multiplies the Money by a decimal factor (a rate or a
// fractional quantity) and rounds to the nearest minor unit.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	product := decimal.NewFromInt(m.Amount).Mul(factor).Round(0)
	return Money{Amount: product.IntPart(), Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// NonNegative clamps negative amounts to zero.
func (m Money) NonNegative() Money {
	if m.Amount < 0 {
		return Money{Amount: 0, Currency: m.Currency}
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.currencyWith(other)
	return m.Amount > other.Amount
}

// Max returns the larger of two Money values. Panics if currencies don't match.
func (m Money) Max(other Money) Money {
	cur := m.currencyWith(other)
	if m.Amount > other.Amount {
		return Money{Amount: m.Amount, Currency: cur}
	}
	return Money{Amount: other.Amount, Currency: cur}
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol,
// e.g. "49.00" for USD(4900).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	major := absAmount / divisor
	minor := absAmount % divisor

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, major, minor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol, e.g. "$49.00".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler. The display field is informational
// and ignored on decode.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// Helper functions

// currencyWith returns the currency shared by m and other. A zero amount
// with no currency adopts the other side's. Panics on a real mismatch.
func (m Money) currencyWith(other Money) string {
	switch {
	case m.Currency == other.Currency:
		return m.Currency
	case m.Currency == "" && m.Amount == 0:
		return other.Currency
	case other.Currency == "" && other.Amount == 0:
		return m.Currency
	}
	panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"cad": "C$",
		"eur": "€",
		"gbp": "£",
		"":    "",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp":
		return 0
	}
	return 2
}

// Sum calculates the sum of multiple Money values. All must share a currency.
func Sum(values ...Money) Money {
	var result Money
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
