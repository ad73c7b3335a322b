// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/store"
	"github.com/kdgroup/jobledger/types"
)

// Factory returns a fresh, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises every store operation against the backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("Jobs", func(t *testing.T) { testJobs(t, newStore(t)) })
	t.Run("UpdateJobIsAtomic", func(t *testing.T) { testUpdateJobAtomic(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("Sequences", func(t *testing.T) { testSequences(t, newStore(t)) })
	t.Run("Payouts", func(t *testing.T) { testPayouts(t, newStore(t)) })
	t.Run("Leads", func(t *testing.T) { testLeads(t, newStore(t)) })
}

var base = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newJob(customer string, offset time.Duration) *job.Job {
	j := job.New(customer, id.Nil)
	j.CreatedAt = base.Add(offset)
	j.UpdatedAt = j.CreatedAt
	j.Dates[job.StatusLead] = j.CreatedAt
	return j
}

func testJobs(t *testing.T, s store.Store) {
	ctx := context.Background()

	j := newJob("Nguyen", 0)
	cv := types.USD(1_250_000)
	j.Commission.ContractValue = &cv
	j.CrewIDs = []string{"crew-1"}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, jobledger.ErrAlreadyExists) {
		t.Errorf("duplicate CreateJob: got %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.CustomerName != "Nguyen" || got.Status != job.StatusLead {
		t.Errorf("GetJob: got %+v", got)
	}
	if got.ContractValue().Amount != 1_250_000 {
		t.Errorf("contract value: got %d", got.ContractValue().Amount)
	}
	if !got.Dates[job.StatusLead].Equal(j.CreatedAt) {
		t.Errorf("lead date: got %v, want %v", got.Dates[job.StatusLead], j.CreatedAt)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, jobledger.ErrJobNotFound) {
		t.Errorf("missing job: got %v", err)
	}

	updated, err := s.UpdateJob(ctx, j.ID, func(j *job.Job) error {
		j.Status = job.StatusSold
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.Version != j.Version+1 || updated.Status != job.StatusSold {
		t.Errorf("UpdateJob: version %d status %s", updated.Version, updated.Status)
	}

	boom := errors.New("boom")
	if _, err := s.UpdateJob(ctx, j.ID, func(j *job.Job) error {
		j.Status = job.StatusComplete
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("aborted UpdateJob: got %v", err)
	}
	got, _ = s.GetJob(ctx, j.ID)
	if got.Status != job.StatusSold || got.Version != updated.Version {
		t.Errorf("aborted update leaked: status %s version %d", got.Status, got.Version)
	}

	if _, err := s.UpdateJob(ctx, id.NewJobID(), func(*job.Job) error { return nil }); !errors.Is(err, jobledger.ErrJobNotFound) {
		t.Errorf("UpdateJob on missing job: got %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := s.CreateJob(ctx, newJob(fmt.Sprintf("lead-%d", i), time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts job.ListOpts
		want int
	}{
		{"all", job.ListOpts{}, 4},
		{"by status", job.ListOpts{Status: job.StatusLead}, 3},
		{"limit", job.ListOpts{Status: job.StatusLead, Limit: 2}, 2},
		{"offset", job.ListOpts{Offset: 3}, 1},
		{"no match", job.ListOpts{Status: job.StatusPaidInFull}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(jobs) != tt.want {
				t.Errorf("got %d jobs, want %d", len(jobs), tt.want)
			}
		})
	}
}

func testUpdateJobAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("Concurrent", 0)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateJob(ctx, j.ID, func(j *job.Job) error {
				j.Log = append(j.Log, job.AuditEntry{ID: id.NewAuditID(), Type: job.EntryNote, Note: fmt.Sprint(i)})
				return nil
			})
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Log) != writers {
		t.Errorf("lost updates: %d log entries, want %d", len(got.Log), writers)
	}
	if got.Version != writers {
		t.Errorf("version: got %d, want %d", got.Version, writers)
	}
}

func newInvoice(number string, from, to invoice.EntityCode, status invoice.Status, offset time.Duration) *invoice.Invoice {
	items, totals := invoice.ComputeTotals([]invoice.LineItem{
		invoice.NewLineItem("Labor", decimal.NewFromInt(2), types.USD(40_000)),
	}, types.Money{})
	created := base.Add(offset)
	return &invoice.Invoice{
		Entity:        types.Entity{CreatedAt: created, UpdatedAt: created},
		ID:            id.NewInvoiceID(),
		InvoiceNumber: number,
		From:          invoice.Party{Entity: from, Name: string(from)},
		To:            invoice.Party{Entity: to, Name: string(to)},
		LineItems:     items,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Total:         totals.Total,
		Status:        status,
		DueDate:       created.AddDate(0, 0, 30),
	}
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := id.NewJobID()

	settled := newInvoice("KTS-2026-0001", invoice.EntityKTS, invoice.EntityKR, invoice.StatusSent, 0)
	settled.JobID = jobID
	settled.SettlementKey = jobID.String() + ":labor"
	customer := newInvoice("KR-2026-0001", invoice.EntityKR, invoice.EntityCustomer, invoice.StatusDraft, time.Hour)
	subscriber := newInvoice("KD-2026-0001", invoice.EntityKD, invoice.EntitySubscriber, invoice.StatusPaid, 48*time.Hour)

	for _, inv := range []*invoice.Invoice{settled, customer, subscriber} {
		if err := s.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("CreateInvoice %s: %v", inv.InvoiceNumber, err)
		}
	}

	dupKey := newInvoice("KTS-2026-0002", invoice.EntityKTS, invoice.EntityKR, invoice.StatusSent, 0)
	dupKey.SettlementKey = settled.SettlementKey
	if err := s.CreateInvoice(ctx, dupKey); !errors.Is(err, jobledger.ErrAlreadyExists) {
		t.Errorf("duplicate settlement key: got %v", err)
	}
	dupNum := newInvoice("KR-2026-0001", invoice.EntityKR, invoice.EntityCustomer, invoice.StatusDraft, 0)
	if err := s.CreateInvoice(ctx, dupNum); !errors.Is(err, jobledger.ErrAlreadyExists) {
		t.Errorf("duplicate invoice number: got %v", err)
	}

	got, err := s.GetInvoice(ctx, settled.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Total.Amount != 80_000 || got.LineItems[0].Quantity.String() != "2" {
		t.Errorf("round trip: total %d quantity %s", got.Total.Amount, got.LineItems[0].Quantity)
	}
	if !got.DueDate.Equal(settled.DueDate) || got.JobID != jobID {
		t.Errorf("round trip: due %v job %s", got.DueDate, got.JobID)
	}

	byKey, err := s.GetInvoiceBySettlementKey(ctx, settled.SettlementKey)
	if err != nil || byKey.ID != settled.ID {
		t.Errorf("GetInvoiceBySettlementKey: %v %v", byKey, err)
	}
	if _, err := s.GetInvoiceBySettlementKey(ctx, "nope"); !errors.Is(err, jobledger.ErrInvoiceNotFound) {
		t.Errorf("missing key: got %v", err)
	}
	if _, err := s.GetInvoice(ctx, id.NewInvoiceID()); !errors.Is(err, jobledger.ErrInvoiceNotFound) {
		t.Errorf("missing invoice: got %v", err)
	}

	tests := []struct {
		name string
		opts invoice.ListOpts
		want []string
	}{
		{"all", invoice.ListOpts{}, []string{"KTS-2026-0001", "KR-2026-0001", "KD-2026-0001"}},
		{"status", invoice.ListOpts{Status: invoice.StatusSent}, []string{"KTS-2026-0001"}},
		{"either party", invoice.ListOpts{Entity: invoice.EntityKR}, []string{"KTS-2026-0001", "KR-2026-0001"}},
		{"job", invoice.ListOpts{JobID: jobID}, []string{"KTS-2026-0001"}},
		{"window", invoice.ListOpts{Start: base.Add(time.Minute), End: base.Add(24 * time.Hour)}, []string{"KR-2026-0001"}},
		{"page", invoice.ListOpts{Limit: 1, Offset: 1}, []string{"KR-2026-0001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListInvoices(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, inv := range list {
				got = append(got, inv.InvoiceNumber)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	paidAt := base.Add(72 * time.Hour)
	got.Status = invoice.StatusPaid
	got.PaidAt = &paidAt
	if err := s.UpdateInvoice(ctx, got); err != nil {
		t.Fatal(err)
	}
	again, _ := s.GetInvoice(ctx, settled.ID)
	if again.Status != invoice.StatusPaid || again.PaidAt == nil || !again.PaidAt.Equal(paidAt) {
		t.Errorf("UpdateInvoice not persisted: %+v", again)
	}
	paid, _ := s.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusPaid})
	if len(paid) != 2 {
		t.Errorf("paid filter after update: got %d", len(paid))
	}

	if err := s.UpdateInvoice(ctx, newInvoice("X-2026-0001", invoice.EntityKR, invoice.EntityCustomer, invoice.StatusDraft, 0)); !errors.Is(err, jobledger.ErrInvoiceNotFound) {
		t.Errorf("UpdateInvoice on missing invoice: got %v", err)
	}
}

func testSequences(t *testing.T, s store.Store) {
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, "KR", 2026)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("KR 2026: got %d, want %d", got, want)
		}
	}
	if got, _ := s.NextSequence(ctx, "KR", 2027); got != 1 {
		t.Errorf("new year restarts: got %d", got)
	}
	if got, _ := s.NextSequence(ctx, "KD", 2026); got != 1 {
		t.Errorf("prefixes are independent: got %d", got)
	}

	const callers = 20
	var wg sync.WaitGroup
	seen := make(chan int64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.NextSequence(ctx, "KTS", 2026)
			if err != nil {
				t.Error(err)
				return
			}
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for n := range seen {
		if unique[n] {
			t.Errorf("sequence %d issued twice", n)
		}
		unique[n] = true
	}
	if len(unique) != callers {
		t.Errorf("issued %d distinct values, want %d", len(unique), callers)
	}
}

func testPayouts(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := id.NewJobID()

	mk := func(typ payout.Type, key string, offset time.Duration) *payout.Payout {
		created := base.Add(offset)
		return &payout.Payout{
			Entity:        types.Entity{CreatedAt: created, UpdatedAt: created},
			ID:            id.NewPayoutID(),
			Type:          typ,
			FromEntity:    invoice.EntityKR,
			ToEntity:      invoice.EntityKTS,
			Amount:        types.USD(150_000),
			Status:        payout.StatusPending,
			JobID:         jobID,
			SettlementKey: key,
		}
	}

	labor := mk(payout.TypeLabor, jobID.String()+":labor", 0)
	fee := mk(payout.TypeLeadFee, jobID.String()+":lead_fee", time.Minute)
	for _, p := range []*payout.Payout{labor, fee} {
		if err := s.CreatePayout(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreatePayout(ctx, mk(payout.TypeLabor, labor.SettlementKey, 0)); !errors.Is(err, jobledger.ErrAlreadyExists) {
		t.Errorf("duplicate settlement key: got %v", err)
	}

	got, err := s.GetPayoutBySettlementKey(ctx, labor.SettlementKey)
	if err != nil || got.ID != labor.ID || got.Amount.Amount != 150_000 {
		t.Errorf("GetPayoutBySettlementKey: %+v %v", got, err)
	}
	if _, err := s.GetPayout(ctx, id.NewPayoutID()); !errors.Is(err, jobledger.ErrPayoutNotFound) {
		t.Errorf("missing payout: got %v", err)
	}

	got.Status = payout.StatusCompleted
	if err := s.UpdatePayout(ctx, got); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts payout.ListOpts
		want int
	}{
		{"job", payout.ListOpts{JobID: jobID}, 2},
		{"type", payout.ListOpts{Type: payout.TypeLeadFee}, 1},
		{"status", payout.ListOpts{Status: payout.StatusCompleted}, 1},
		{"other job", payout.ListOpts{JobID: id.NewJobID()}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListPayouts(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != tt.want {
				t.Errorf("got %d, want %d", len(list), tt.want)
			}
		})
	}

	if err := s.UpdatePayout(ctx, mk(payout.TypeLabor, "", 0)); !errors.Is(err, jobledger.ErrPayoutNotFound) {
		t.Errorf("UpdatePayout on missing payout: got %v", err)
	}
}

func testLeads(t *testing.T, s store.Store) {
	ctx := context.Background()
	cv := types.USD(900_000)
	l := &lead.Lead{
		Entity:        types.Entity{CreatedAt: base, UpdatedAt: base},
		ID:            id.NewLeadID(),
		Source:        "Houzz",
		CustomerName:  "Patel",
		ContractValue: &cv,
	}
	if err := s.CreateLead(ctx, l); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateLead(ctx, l); !errors.Is(err, jobledger.ErrAlreadyExists) {
		t.Errorf("duplicate lead: got %v", err)
	}

	got, err := s.GetLead(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "Houzz" || got.ContractValue == nil || got.ContractValue.Amount != 900_000 {
		t.Errorf("GetLead: %+v", got)
	}
	if _, err := s.GetLead(ctx, id.NewLeadID()); !errors.Is(err, jobledger.ErrLeadNotFound) {
		t.Errorf("missing lead: got %v", err)
	}
}
