package invoice

import "github.com/kdgroup/jobledger/types"

// Totals is the result of ComputeTotals.
type Totals struct {
	Subtotal types.Money `json:"subtotal"`
	Discount types.Money `json:"discount"`
	Total    types.Money `json:"total"`
}

// ComputeTotals recomputes each line total as round(quantity x rate), sums
// them, and applies the discount. The total never drops below zero.
func ComputeTotals(items []LineItem, discount types.Money) ([]LineItem, Totals) {
	out := make([]LineItem, len(items))
	var subtotal types.Money
	for i, it := range items {
		it.Total = it.Rate.MulDecimal(it.Quantity)
		subtotal = subtotal.Add(it.Total)
		out[i] = it
	}
	if subtotal.Currency == "" {
		subtotal.Currency = discount.Currency
	}
	return out, Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Subtract(discount).NonNegative(),
	}
}
