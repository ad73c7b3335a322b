package report

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/types"
)

var now = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

func sent(number string, due time.Time, cents int64) *invoice.Invoice {
	return &invoice.Invoice{InvoiceNumber: number, Status: invoice.StatusSent, DueDate: due, Total: types.USD(cents)}
}

func paid(from, to invoice.EntityCode, paidAt time.Time, cents int64) *invoice.Invoice {
	inv := &invoice.Invoice{
		From:   invoice.Party{Entity: from},
		To:     invoice.Party{Entity: to},
		Status: invoice.StatusPaid,
		Total:  types.USD(cents),
		PaidAt: &paidAt,
	}
	inv.CreatedAt = paidAt.AddDate(0, 0, -10)
	return inv
}

func TestAgingBoundaries(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name   string
		due    time.Time
		bucket string
	}{
		{"not yet due", now.Add(5 * day), Bucket0To30},
		{"exactly 30 days", now.Add(-30 * day), Bucket0To30},
		{"30 days and some hours", now.Add(-30*day - 23*time.Hour), Bucket0To30},
		{"31 days", now.Add(-31 * day), Bucket31To60},
		{"60 days", now.Add(-60 * day), Bucket31To60},
		{"61 days", now.Add(-61 * day), Bucket61To90},
		{"90 days", now.Add(-90 * day), Bucket61To90},
		{"91 days", now.Add(-91 * day), Bucket90Plus},
		{"a year", now.Add(-365 * day), Bucket90Plus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Aging([]*invoice.Invoice{sent("KD-2026-0001", tt.due, 1000)}, now)
			for _, row := range rep.Rows {
				want := 0
				if row.Bucket == tt.bucket {
					want = 1
				}
				if row.Count != want {
					t.Errorf("bucket %s: count %d, want %d", row.Bucket, row.Count, want)
				}
			}
		})
	}
}

func TestAgingOnlySentInvoices(t *testing.T) {
	past := now.AddDate(0, 0, -45)
	invoices := []*invoice.Invoice{
		sent("KD-2026-0001", past, 5000),
		sent("KD-2026-0002", past, 2500),
		{InvoiceNumber: "KD-2026-0003", Status: invoice.StatusDraft, DueDate: past, Total: types.USD(100)},
		{InvoiceNumber: "KD-2026-0004", Status: invoice.StatusPaid, DueDate: past, Total: types.USD(100)},
	}

	rep := Aging(invoices, now)
	if rep.Total.Count != 2 || rep.Total.Amount.Amount != 7500 {
		t.Errorf("Total: got %d / %d", rep.Total.Count, rep.Total.Amount.Amount)
	}
	if !slices.Equal(rep.Rows[1].InvoiceNumbers, []string{"KD-2026-0001", "KD-2026-0002"}) {
		t.Errorf("31-60 numbers: got %v", rep.Rows[1].InvoiceNumbers)
	}
	if len(rep.Rows) != 4 {
		t.Errorf("expected 4 buckets, got %d", len(rep.Rows))
	}
}

func TestMonthly(t *testing.T) {
	noPaidAt := &invoice.Invoice{Status: invoice.StatusPaid, Total: types.USD(300)}
	noPaidAt.CreatedAt = time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)

	invoices := []*invoice.Invoice{
		paid("kd", "kr", time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), 1000),
		paid("kts", "kr", time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC), 2000),
		paid("kd", "kr", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 500),
		noPaidAt,
		sent("KD-2026-0009", now, 99_999),
	}

	rows := Monthly(invoices)
	want := []MonthRow{
		{Month: "2026-06", Count: 1, Revenue: types.USD(500)},
		{Month: "2026-05", Count: 2, Revenue: types.USD(3000)},
		{Month: "2026-04", Count: 1, Revenue: types.USD(300)},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i].Month != want[i].Month || rows[i].Count != want[i].Count || !rows[i].Revenue.Equal(want[i].Revenue) {
			t.Errorf("row %d: got %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func finishedJob(status job.Status, materials int64) *job.Job {
	j := &job.Job{Status: status, Dates: map[job.Status]time.Time{job.StatusComplete: now.AddDate(0, 0, -3)}}
	j.Costs.MaterialActual = types.USD(materials)
	return j
}

func TestEntityPnL(t *testing.T) {
	invoices := []*invoice.Invoice{
		paid("kd", "kr", now, 50_000),
		paid("kts", "kr", now, 150_000),
		paid("kr", "customer", now, 1_000_000),
		sent("KR-2026-0002", now, 7_777),
	}
	jobs := []*job.Job{
		finishedJob(job.StatusPaidInFull, 200_000),
		finishedJob(job.StatusComplete, 100_000),
		finishedJob(job.StatusStarted, 999_999),
	}

	kr := EntityPnL("kr", invoices, jobs, Period{})
	if kr.Revenue.Amount != 1_000_000 {
		t.Errorf("kr revenue: got %d", kr.Revenue.Amount)
	}
	if kr.MaterialCosts.Amount != 300_000 {
		t.Errorf("kr materials: got %d", kr.MaterialCosts.Amount)
	}
	if kr.Expenses.Amount != 500_000 {
		t.Errorf("kr expenses: got %d", kr.Expenses.Amount)
	}
	if kr.NetIncome.Amount != 500_000 {
		t.Errorf("kr net: got %d", kr.NetIncome.Amount)
	}

	kd := EntityPnL("kd", invoices, jobs, Period{})
	if kd.Revenue.Amount != 50_000 || kd.Expenses.Amount != 0 || kd.MaterialCosts.Amount != 0 {
		t.Errorf("kd: got %+v", kd)
	}
}

func TestCombinedIntercompanySymmetry(t *testing.T) {
	sets := [][]*invoice.Invoice{
		nil,
		{paid("kd", "kr", now, 500)},
		{paid("kd", "kr", now, 500), paid("kts", "kr", now, 1500), paid("kr", "customer", now, 9000)},
		{paid("kr", "kts", now, 10), paid("kts", "kd", now, 20), paid("customer", "kd", now, 30), paid("kd", "subscriber", now, 40)},
	}

	for i, invoices := range sets {
		c := Combined(invoices, nil, Period{})
		if !c.IntercompanyRevenue.Equal(c.IntercompanyExpenses) {
			t.Errorf("set %d: intercompany revenue %v != expenses %v", i, c.IntercompanyRevenue, c.IntercompanyExpenses)
		}
		if c.ConsolidatedNetIncome.Amount != c.NetIncome.Amount {
			t.Errorf("set %d: eliminating intercompany changed net income", i)
		}
	}

	c := Combined(sets[2], nil, Period{})
	if c.IntercompanyRevenue.Amount != 2000 {
		t.Errorf("intercompany: got %d, want 2000", c.IntercompanyRevenue.Amount)
	}
	if c.Revenue.Amount != 11_000 || c.ConsolidatedRevenue.Amount != 9000 {
		t.Errorf("revenue: gross %d consolidated %d", c.Revenue.Amount, c.ConsolidatedRevenue.Amount)
	}
	if len(c.Entities) != 3 {
		t.Errorf("expected kd, kts, kr rows, got %d", len(c.Entities))
	}
}

func TestPeriodFilter(t *testing.T) {
	may := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	invoices := []*invoice.Invoice{paid("kd", "kr", may, 100), paid("kd", "kr", june, 200)}

	p := Period{From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
	if got := EntityPnL("kd", invoices, nil, p).Revenue.Amount; got != 200 {
		t.Errorf("June revenue: got %d, want 200", got)
	}
	if !(Period{}).Contains(may) {
		t.Error("open period must contain everything")
	}
}

func TestRebuilderBatchesAndSwaps(t *testing.T) {
	sink := NewMemorySink()
	r := NewRebuilder(sink, WithBatchSize(2), WithRateLimit(0, 0))

	rows := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	if err := r.Rebuild(context.Background(), Table{Name: "T", Header: []string{"col"}, Rows: rows}); err != nil {
		t.Fatal(err)
	}

	got, ok := sink.Table("T")
	if !ok || len(got.Rows) != 5 {
		t.Fatalf("committed table: %+v", got)
	}
	if sink.Writes() != 3 {
		t.Errorf("Writes: got %d, want 3", sink.Writes())
	}
}

func TestRebuilderKeepsPreviousTableOnFailure(t *testing.T) {
	sink := NewMemorySink()
	r := NewRebuilder(sink, WithRateLimit(0, 0))
	ctx := context.Background()

	if err := r.Rebuild(ctx, Table{Name: "T", Rows: [][]string{{"old"}}}); err != nil {
		t.Fatal(err)
	}

	sink.FailOn = "T"
	if err := r.Rebuild(ctx, Table{Name: "T", Rows: [][]string{{"new"}}}); err == nil {
		t.Fatal("expected failure")
	}

	got, _ := sink.Table("T")
	if len(got.Rows) != 1 || got.Rows[0][0] != "old" {
		t.Errorf("partial rebuild leaked: %v", got.Rows)
	}
}

func TestRebuildAll(t *testing.T) {
	sink := NewMemorySink()
	r := NewRebuilder(sink, WithRateLimit(0, 0))

	invoices := []*invoice.Invoice{paid("kd", "kr", now, 500), sent("KD-2026-0002", now, 100)}
	err := r.RebuildAll(context.Background(),
		AgingTable(Aging(invoices, now)),
		MonthlyTable(Monthly(invoices)),
		PnLTable(Combined(invoices, nil, Period{})),
		InvoiceTable(invoices, now),
	)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{TableAging, TableMonthly, TablePnL, TableInvoices} {
		if _, ok := sink.Table(name); !ok {
			t.Errorf("table %s not committed", name)
		}
	}
	aging, _ := sink.Table(TableAging)
	if len(aging.Rows) != 5 {
		t.Errorf("aging rows: got %d, want 4 buckets + total", len(aging.Rows))
	}
}
