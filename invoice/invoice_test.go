package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger/types"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []LineItem
		discount types.Money
		subtotal int64
		total    int64
	}{
		{"single item", []LineItem{{Quantity: qty("1"), Rate: types.USD(120_000)}}, types.USD(0), 120_000, 120_000},
		{"two items", []LineItem{{Quantity: qty("1"), Rate: types.USD(120_000)}, {Quantity: qty("1"), Rate: types.USD(30_000)}}, types.USD(0), 150_000, 150_000},
		{"fractional quantity", []LineItem{{Quantity: qty("2.5"), Rate: types.USD(4500)}}, types.USD(1000), 11_250, 10_250},
		{"discount equals subtotal", []LineItem{{Quantity: qty("1"), Rate: types.USD(500)}}, types.USD(500), 500, 0},
		{"discount exceeds subtotal", []LineItem{{Quantity: qty("1"), Rate: types.USD(500)}}, types.USD(9_999), 500, 0},
		{"no items", nil, types.USD(100), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, totals := ComputeTotals(tt.items, tt.discount)
			if totals.Subtotal.Amount != tt.subtotal {
				t.Errorf("Subtotal: got %d, want %d", totals.Subtotal.Amount, tt.subtotal)
			}
			if totals.Total.Amount != tt.total {
				t.Errorf("Total: got %d, want %d", totals.Total.Amount, tt.total)
			}
			if totals.Total.IsNegative() {
				t.Error("total must never be negative")
			}
			var sum int64
			for _, it := range items {
				sum += it.Total.Amount
			}
			if sum != tt.subtotal {
				t.Errorf("line totals sum to %d, subtotal %d", sum, tt.subtotal)
			}
		})
	}
}

func TestComputeTotalsNeverNegative(t *testing.T) {
	for rate := int64(0); rate < 2000; rate += 137 {
		for disc := int64(0); disc < 4000; disc += 251 {
			_, totals := ComputeTotals([]LineItem{{Quantity: qty("1.5"), Rate: types.USD(rate)}}, types.USD(disc))
			want := totals.Subtotal.Amount - disc
			if want < 0 {
				want = 0
			}
			if totals.Total.Amount != want {
				t.Fatalf("rate=%d discount=%d: total %d, want %d", rate, disc, totals.Total.Amount, want)
			}
		}
	}
}

func TestOverdueIsDerived(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name    string
		status  Status
		due     time.Time
		overdue bool
		display string
	}{
		{"sent past due", StatusSent, past, true, "overdue"},
		{"sent not due", StatusSent, future, false, "sent"},
		{"draft past due", StatusDraft, past, false, "draft"},
		{"paid past due", StatusPaid, past, false, "paid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Invoice{Status: tt.status, DueDate: tt.due}
			if got := inv.IsOverdue(now); got != tt.overdue {
				t.Errorf("IsOverdue: got %v, want %v", got, tt.overdue)
			}
			if got := inv.DisplayStatus(now); got != tt.display {
				t.Errorf("DisplayStatus: got %s, want %s", got, tt.display)
			}
		})
	}

	if Status(DisplayOverdue).IsValid() {
		t.Error("overdue must not be a storable status")
	}
}

func TestNumbering(t *testing.T) {
	tests := []struct {
		prefix string
		year   int
		seq    int64
		want   string
	}{
		{"KD", 2026, 1, "KD-2026-0001"},
		{"kts", 2026, 42, "KTS-2026-0042"},
		{"KR", 2027, 12345, "KR-2027-12345"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatNumber(tt.prefix, tt.year, tt.seq)
			if got != tt.want {
				t.Fatalf("FormatNumber: got %s, want %s", got, tt.want)
			}
			prefix, year, seq, err := ParseNumber(got)
			if err != nil {
				t.Fatalf("ParseNumber: %v", err)
			}
			if year != tt.year || seq != tt.seq || prefix == "" {
				t.Errorf("ParseNumber: got %s %d %d", prefix, year, seq)
			}
		})
	}

	if _, _, _, err := ParseNumber("KD-26-1"); err == nil {
		t.Error("expected error for malformed number")
	}
}

func TestPrefixFor(t *testing.T) {
	if PrefixFor(EntityKD) != "KD" || PrefixFor(EntityKTS) != "KTS" || PrefixFor(EntityCustomer) != "INV" {
		t.Error("unexpected prefixes")
	}
}

func TestIsIntercompany(t *testing.T) {
	inv := &Invoice{From: Party{Entity: EntityKTS}, To: Party{Entity: EntityKR}}
	if !inv.IsIntercompany() {
		t.Error("kts -> kr is intercompany")
	}
	inv.To.Entity = EntityCustomer
	if inv.IsIntercompany() {
		t.Error("kts -> customer is not intercompany")
	}
}
