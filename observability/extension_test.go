package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/observability"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/types"
)

func value(t *testing.T, c any) float64 {
	t.Helper()
	col, ok := c.(prometheus.Collector)
	if !ok {
		t.Fatalf("%T is not a prometheus collector", c)
	}
	return testutil.ToFloat64(col)
}

func TestMetricsExtensionCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	j := job.New("Rivera", id.NewLeadID())
	_ = m.OnJobCreated(ctx, j)
	_ = m.OnJobTransitioned(ctx, j, job.StatusLead, job.StatusSold)
	_ = m.OnJobTransitioned(ctx, j, job.StatusSold, job.StatusLead)
	_ = m.OnJobTransitioned(ctx, j, job.StatusComplete, job.StatusPaidInFull)

	inv := &invoice.Invoice{Total: types.USD(150_000)}
	_ = m.OnInvoiceCreated(ctx, inv)
	_ = m.OnInvoicePaid(ctx, inv)

	p := &payout.Payout{Amount: types.USD(50_000), Status: payout.StatusCompleted}
	_ = m.OnPayoutCreated(ctx, p)
	_ = m.OnPayoutUpdated(ctx, p, payout.StatusPending)
	_ = m.OnSettlementFailed(ctx, j.ID, "labor", errors.New("no contractor"))

	tests := []struct {
		name string
		c    any
		want float64
	}{
		{"job created", m.JobCreated, 1},
		{"transitions", m.JobTransitions, 3},
		{"rollbacks", m.JobRollbacks, 1},
		{"paid in full", m.JobPaidInFull, 1},
		{"invoice created", m.InvoiceCreated, 1},
		{"invoice paid", m.InvoicePaid, 1},
		{"invoice sent", m.InvoiceSent, 0},
		{"payout created", m.PayoutCreated, 1},
		{"payout completed", m.PayoutCompleted, 1},
		{"payout failed", m.PayoutFailed, 0},
		{"settlement failures", m.SettlementFailure, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := value(t, tt.c); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrometheusFactoryNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	c := f.Counter("jobledger.job.created")
	c.Inc()
	if again := f.Counter("jobledger.job.created"); again != c {
		t.Fatal("expected the same counter for a repeated name")
	}
	f.Histogram("jobledger.invoice.total_cents").Observe(12_500)

	n, err := testutil.GatherAndCount(reg, "jobledger_job_created_total", "jobledger_invoice_total_cents")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("gathered %d metrics, want 2", n)
	}
}

func TestPrometheusFactoryReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := observability.NewPrometheusFactory(reg).Counter("jobledger.payout.created")
	second := observability.NewPrometheusFactory(reg).Counter("jobledger.payout.created")

	first.Inc()
	second.Inc()
	if got := value(t, second); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
}
