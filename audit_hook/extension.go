// Package audithook bridges jobledger lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnJobCreated       = (*Extension)(nil)
	_ plugin.OnJobTransitioned  = (*Extension)(nil)
	_ plugin.OnJobUpdated       = (*Extension)(nil)
	_ plugin.OnInvoiceCreated   = (*Extension)(nil)
	_ plugin.OnInvoiceSent      = (*Extension)(nil)
	_ plugin.OnInvoicePaid      = (*Extension)(nil)
	_ plugin.OnInvoiceReverted  = (*Extension)(nil)
	_ plugin.OnPayoutCreated    = (*Extension)(nil)
	_ plugin.OnPayoutUpdated    = (*Extension)(nil)
	_ plugin.OnSettlementFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges jobledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   zerolog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Job pipeline hooks
// ──────────────────────────────────────────────────

// OnJobCreated implements plugin.OnJobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryPipeline, nil,
		"customer", j.CustomerName,
		"lead_id", j.LeadID.String(),
	)
}

// OnJobTransitioned implements plugin.OnJobTransitioned. Rollbacks are
// recorded under their own action at warning severity.
func (e *Extension) OnJobTransitioned(ctx context.Context, j *job.Job, from, to job.Status) error {
	action, severity := ActionJobTransitioned, SeverityInfo
	if rule, ok := job.Lookup(from, to); ok && rule.Rollback {
		action, severity = ActionJobRolledBack, SeverityWarning
	}

	kv := []any{"from", string(from), "to", string(to)}
	if n := len(j.Log); n > 0 {
		last := j.Log[n-1]
		kv = append(kv, "actor_id", last.ActorID, "actor_role", string(last.ActorRole))
		if last.Skipped {
			kv = append(kv, "skipped_validation", true)
		}
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryPipeline, nil, kv...)
}

// OnJobUpdated implements plugin.OnJobUpdated.
func (e *Extension) OnJobUpdated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobUpdated, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryPipeline, nil,
		"version", j.Version,
	)
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		invoiceFields(inv)...,
	)
}

// OnInvoiceSent implements plugin.OnInvoiceSent.
func (e *Extension) OnInvoiceSent(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceSent, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		invoiceFields(inv)...,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		invoiceFields(inv)...,
	)
}

// OnInvoiceReverted implements plugin.OnInvoiceReverted.
func (e *Extension) OnInvoiceReverted(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	return e.record(ctx, ActionInvoiceReverted, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		append(invoiceFields(inv), "reverted_from", string(from))...,
	)
}

func invoiceFields(inv *invoice.Invoice) []any {
	return []any{
		"invoice_number", inv.InvoiceNumber,
		"from", string(inv.From.Entity),
		"to", string(inv.To.Entity),
		"total", inv.Total.String(),
		"status", string(inv.Status),
	}
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPayoutCreated implements plugin.OnPayoutCreated.
func (e *Extension) OnPayoutCreated(ctx context.Context, p *payout.Payout) error {
	return e.record(ctx, ActionPayoutCreated, SeverityInfo, OutcomeSuccess,
		ResourcePayout, p.ID.String(), CategorySettlement, nil,
		"type", string(p.Type),
		"job_id", p.JobID.String(),
		"amount", p.Amount.String(),
		"from", string(p.FromEntity),
		"to", string(p.ToEntity),
	)
}

// OnPayoutUpdated implements plugin.OnPayoutUpdated.
func (e *Extension) OnPayoutUpdated(ctx context.Context, p *payout.Payout, from payout.Status) error {
	if p.Status == payout.StatusFailed {
		return e.record(ctx, ActionPayoutFailed, SeverityError, OutcomeFailure,
			ResourcePayout, p.ID.String(), CategorySettlement, errors.New(p.FailureReason),
			"from", string(from),
		)
	}
	return e.record(ctx, ActionPayoutUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePayout, p.ID.String(), CategorySettlement, nil,
		"from", string(from),
		"to", string(p.Status),
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, jobID id.JobID, kind string, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSettlement, jobID.String(), CategorySettlement, err,
		"kind", kind,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn().
			Err(recErr).
			Str("action", action).
			Str("resource_id", resourceID).
			Msg("audit_hook: failed to record audit event")
	}
	return nil
}
