// Package plugin provides an extensible plugin system for jobledger.
// Plugins hook into pipeline, ledger and settlement events. Hooks run with
// a timeout and their failures are logged, never propagated.
package plugin

import (
	"context"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/payout"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Job pipeline hooks
// ──────────────────────────────────────────────────

// OnJobCreated is called when a converted lead enters the pipeline.
type OnJobCreated interface {
	Plugin
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// OnJobTransitioned is called after a status change is committed.
type OnJobTransitioned interface {
	Plugin
	OnJobTransitioned(ctx context.Context, j *job.Job, from, to job.Status) error
}

// OnJobUpdated is called after a job patch is committed.
type OnJobUpdated interface {
	Plugin
	OnJobUpdated(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called when an invoice is added to the ledger.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceSent is called when an invoice is marked sent.
type OnInvoiceSent interface {
	Plugin
	OnInvoiceSent(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when an invoice is marked paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceReverted is called after an administrative status reversal.
type OnInvoiceReverted interface {
	Plugin
	OnInvoiceReverted(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPayoutCreated is called when settlement records a payout.
type OnPayoutCreated interface {
	Plugin
	OnPayoutCreated(ctx context.Context, p *payout.Payout) error
}

// OnPayoutUpdated is called when a payout changes status.
type OnPayoutUpdated interface {
	Plugin
	OnPayoutUpdated(ctx context.Context, p *payout.Payout, from payout.Status) error
}

// OnSettlementFailed is called for each failed half of a settlement.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, jobID id.JobID, kind string, err error) error
}
