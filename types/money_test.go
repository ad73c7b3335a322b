package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"CAD", CAD(2500), 2500, "cad", "C$25.00"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"New lowercases", New(150, "USD"), 150, "usd", "$1.50"},
		{"Negative", USD(-1999), -1999, "usd", "$-19.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(3) }, USD(300)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"NonNegative clamps", func() Money { return USD(-50).NonNegative() }, USD(0)},
		{"NonNegative keeps", func() Money { return USD(50).NonNegative() }, USD(50)},
		{"Neutral zero adopts currency", func() Money { return Money{}.Add(USD(700)) }, USD(700)},
		{"Max", func() Money { return USD(100).Max(USD(250)) }, USD(250)},
		{"Sum", func() Money { return Sum(USD(100), USD(200), Money{}) }, USD(300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyDecimal(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Lead fee rate", func() Money { return USD(1_000_000).MulDecimal(decimal.RequireFromString("0.05")) }, USD(50_000)},
		{"Fractional quantity", func() Money { return USD(4500).MulDecimal(decimal.RequireFromString("2.5")) }, USD(11_250)},
		{"Rounds half away", func() Money { return USD(1).MulDecimal(decimal.RequireFromString("0.5")) }, USD(1)},
		{"FromDecimal", func() Money { return FromDecimal(decimal.RequireFromString("12.345"), "USD") }, USD(1235)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); !got.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", got, tt.expected)
			}
		})
	}

	if got := USD(1250).Decimal().String(); got != "12.5" {
		t.Errorf("Decimal: got %s, want 12.5", got)
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(CAD(100))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(USD(4900)) {
		t.Errorf("round-trip: got %v", back)
	}
}
