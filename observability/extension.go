// Package observability provides a metrics extension for jobledger that
// records pipeline, ledger and settlement event counts through a
// MetricFactory. PrometheusFactory is the stock factory.
package observability

import (
	"context"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnJobCreated       = (*MetricsExtension)(nil)
	_ plugin.OnJobTransitioned  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSent      = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceReverted  = (*MetricsExtension)(nil)
	_ plugin.OnPayoutCreated    = (*MetricsExtension)(nil)
	_ plugin.OnPayoutUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to track pipeline and billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Pipeline metrics
	JobCreated     Counter
	JobTransitions Counter
	JobRollbacks   Counter
	JobPaidInFull  Counter

	// Invoice metrics
	InvoiceCreated  Counter
	InvoiceSent     Counter
	InvoicePaid     Counter
	InvoiceReverted Counter
	InvoiceTotal    Histogram

	// Settlement metrics
	PayoutCreated     Counter
	PayoutCompleted   Counter
	PayoutFailed      Counter
	PayoutAmount      Histogram
	SettlementFailure Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		JobCreated:     factory.Counter("jobledger.job.created"),
		JobTransitions: factory.Counter("jobledger.job.transitions"),
		JobRollbacks:   factory.Counter("jobledger.job.rollbacks"),
		JobPaidInFull:  factory.Counter("jobledger.job.paid_in_full"),

		InvoiceCreated:  factory.Counter("jobledger.invoice.created"),
		InvoiceSent:     factory.Counter("jobledger.invoice.sent"),
		InvoicePaid:     factory.Counter("jobledger.invoice.paid"),
		InvoiceReverted: factory.Counter("jobledger.invoice.reverted"),
		InvoiceTotal:    factory.Histogram("jobledger.invoice.total_cents"),

		PayoutCreated:     factory.Counter("jobledger.payout.created"),
		PayoutCompleted:   factory.Counter("jobledger.payout.completed"),
		PayoutFailed:      factory.Counter("jobledger.payout.failed"),
		PayoutAmount:      factory.Histogram("jobledger.payout.amount_cents"),
		SettlementFailure: factory.Counter("jobledger.settlement.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Job pipeline hooks
// ──────────────────────────────────────────────────

// OnJobCreated implements plugin.OnJobCreated.
func (m *MetricsExtension) OnJobCreated(_ context.Context, _ *job.Job) error {
	m.JobCreated.Inc()
	return nil
}

// OnJobTransitioned implements plugin.OnJobTransitioned.
func (m *MetricsExtension) OnJobTransitioned(_ context.Context, _ *job.Job, from, to job.Status) error {
	m.JobTransitions.Inc()
	if rule, ok := job.Lookup(from, to); ok && rule.Rollback {
		m.JobRollbacks.Inc()
	}
	if to == job.StatusPaidInFull {
		m.JobPaidInFull.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoiceSent implements plugin.OnInvoiceSent.
func (m *MetricsExtension) OnInvoiceSent(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceSent.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceReverted implements plugin.OnInvoiceReverted.
func (m *MetricsExtension) OnInvoiceReverted(_ context.Context, _ *invoice.Invoice, _ invoice.Status) error {
	m.InvoiceReverted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPayoutCreated implements plugin.OnPayoutCreated.
func (m *MetricsExtension) OnPayoutCreated(_ context.Context, p *payout.Payout) error {
	m.PayoutCreated.Inc()
	m.PayoutAmount.Observe(float64(p.Amount.Amount))
	return nil
}

// OnPayoutUpdated implements plugin.OnPayoutUpdated.
func (m *MetricsExtension) OnPayoutUpdated(_ context.Context, p *payout.Payout, _ payout.Status) error {
	switch p.Status {
	case payout.StatusCompleted:
		m.PayoutCompleted.Inc()
	case payout.StatusFailed:
		m.PayoutFailed.Inc()
	}
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ id.JobID, _ string, _ error) error {
	m.SettlementFailure.Inc()
	return nil
}
