package jobledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/types"
)

// SettlementResult reports both halves of a settlement. A nil payout means
// that half either did not apply (see Skipped) or failed (see Failures).
type SettlementResult struct {
	JobID          id.JobID                  `json:"job_id"`
	LeadFeeInvoice *invoice.Invoice          `json:"lead_fee_invoice,omitempty"`
	LeadFeePayout  *payout.Payout            `json:"lead_fee_payout,omitempty"`
	LaborInvoice   *invoice.Invoice          `json:"labor_invoice,omitempty"`
	LaborPayout    *payout.Payout            `json:"labor_payout,omitempty"`
	Skipped        map[SettlementKind]string `json:"skipped,omitempty"`
	Failures       []*SettlementError        `json:"-"`
	Job            *job.Job                  `json:"-"`
}

// Payouts returns the payouts that exist after this run.
func (r *SettlementResult) Payouts() []*payout.Payout {
	var out []*payout.Payout
	for _, p := range []*payout.Payout{r.LeadFeePayout, r.LaborPayout} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// SettlementKey is the idempotency key for one half of a job's settlement.
func SettlementKey(jobID id.JobID, kind SettlementKind) string {
	return jobID.String() + ":" + string(kind)
}

// errLinked aborts a job update when the link is already in place.
var errLinked = errors.New("invoice already linked")

// skip marks a settlement half that does not apply to the job.
type skip struct{ reason string }

func (s skip) Error() string { return s.reason }

// Settle runs settlement for a job in paid_in_full. It is idempotent:
// records already minted for the job are reused and partial runs resume.
// Failures are reported in the result, not as the returned error.
func (e *Engine) Settle(ctx context.Context, jobID id.JobID) (*SettlementResult, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusPaidInFull {
		return nil, ValidationError{Field: "status", Message: fmt.Sprintf("job is %s, settlement requires %s", j.Status, job.StatusPaidInFull)}
	}
	return e.settle(ctx, j), nil
}

func (e *Engine) settle(ctx context.Context, j *job.Job) *SettlementResult {
	res := &SettlementResult{JobID: j.ID, Job: j, Skipped: map[SettlementKind]string{}}

	halves := []struct {
		kind SettlementKind
		run  func(context.Context, *job.Job) (*invoice.Invoice, *payout.Payout, error)
	}{
		{SettlementLeadFee, e.settleLeadFee},
		{SettlementLabor, e.settleLabor},
	}

	for _, h := range halves {
		inv, po, err := e.runIsolated(ctx, j, h.kind, h.run)
		var sk skip
		switch {
		case errors.As(err, &sk):
			res.Skipped[h.kind] = sk.reason
			continue
		case err != nil:
			f := &SettlementError{Kind: h.kind, JobID: j.ID.String(), Err: err}
			res.Failures = append(res.Failures, f)
			e.logger.Error().Err(err).Str("job_id", j.ID.String()).Str("kind", string(h.kind)).Msg("settlement failed")
			e.plugins.EmitSettlementFailed(ctx, j.ID, string(h.kind), err)
			continue
		}

		switch h.kind {
		case SettlementLeadFee:
			res.LeadFeeInvoice, res.LeadFeePayout = inv, po
		case SettlementLabor:
			res.LaborInvoice, res.LaborPayout = inv, po
		}

		updated, err := e.linkInvoice(ctx, j.ID, h.kind, inv)
		if err != nil {
			f := &SettlementError{Kind: h.kind, JobID: j.ID.String(), Err: fmt.Errorf("link invoice: %w", err)}
			res.Failures = append(res.Failures, f)
			e.plugins.EmitSettlementFailed(ctx, j.ID, string(h.kind), f.Err)
			continue
		}
		if updated != nil {
			res.Job = updated
		}
	}

	if len(res.Skipped) == 0 {
		res.Skipped = nil
	}
	e.logger.Info().
		Str("job_id", j.ID.String()).
		Int("payouts", len(res.Payouts())).
		Int("failures", len(res.Failures)).
		Msg("settlement finished")
	return res
}

// runIsolated keeps a panic in one half from taking down the other.
func (e *Engine) runIsolated(
	ctx context.Context,
	j *job.Job,
	kind SettlementKind,
	fn func(context.Context, *job.Job) (*invoice.Invoice, *payout.Payout, error),
) (inv *invoice.Invoice, po *payout.Payout, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s settlement panicked: %v", kind, r)
		}
	}()
	return fn(ctx, j)
}

func (e *Engine) settleLeadFee(ctx context.Context, j *job.Job) (*invoice.Invoice, *payout.Payout, error) {
	if j.LeadID.IsNil() {
		return nil, nil, skip{"job has no lead"}
	}
	l, err := e.store.GetLead(ctx, j.LeadID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve lead %s: %w", j.LeadID, err)
	}

	contractValue := e.leadFeeBase(j, l)
	if !contractValue.IsPositive() {
		return nil, nil, skip{"contract value is not positive"}
	}

	key := SettlementKey(j.ID, SettlementLeadFee)
	source := l.Source
	if source == "" {
		source = "Unknown"
	}
	fee := contractValue.MulDecimal(e.leadFeePct)

	inv, created, err := e.ensureSettlementInvoice(ctx, InvoiceInput{
		From:          e.party(invoice.EntityKD, l.ID.String()),
		To:            e.party(invoice.EntityKR, ""),
		LineItems:     []invoice.LineItem{invoice.NewLineItem("Lead Fee – "+source+" Lead", decimal.NewFromInt(1), fee)},
		JobID:         j.ID,
		SettlementKey: key,
		Notes:         fmt.Sprintf("%s%% of contract value %s", e.leadFeePct.Shift(2).String(), contractValue),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("lead fee invoice: %w", err)
	}
	if created {
		e.logger.Info().Str("job_id", j.ID.String()).Str("invoice_number", inv.InvoiceNumber).Msg("lead fee invoiced")
	}

	po, err := e.ensurePayout(ctx, &payout.Payout{
		Type:          payout.TypeLeadFee,
		FromEntity:    invoice.EntityKD,
		ToEntity:      invoice.EntityKR,
		Amount:        inv.Total,
		InvoiceID:     inv.ID,
		JobID:         j.ID,
		LeadID:        l.ID,
		SettlementKey: key,
	})
	if err != nil {
		return inv, nil, fmt.Errorf("lead fee payout: %w", err)
	}
	return inv, po, nil
}

func (e *Engine) settleLabor(ctx context.Context, j *job.Job) (*invoice.Invoice, *payout.Payout, error) {
	labor, commission := e.laborFigures(j)
	if !labor.Add(commission).IsPositive() {
		return nil, nil, skip{"no labor or commission recorded"}
	}
	if !j.HasCrew() {
		return nil, nil, skip{"no crew assigned"}
	}

	// Only the first crew member is credited.
	contractor := j.Contractor()
	one := decimal.NewFromInt(1)

	var items []invoice.LineItem
	if labor.IsPositive() {
		items = append(items, invoice.NewLineItem("Labor – "+contractor, one, labor))
	}
	if commission.IsPositive() {
		items = append(items, invoice.NewLineItem("Sales Commission", one, commission))
	}

	key := SettlementKey(j.ID, SettlementLabor)
	inv, created, err := e.ensureSettlementInvoice(ctx, InvoiceInput{
		From:          e.party(invoice.EntityKTS, contractor),
		To:            e.party(invoice.EntityKR, ""),
		LineItems:     items,
		JobID:         j.ID,
		SettlementKey: key,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("labor invoice: %w", err)
	}
	if created {
		e.logger.Info().Str("job_id", j.ID.String()).Str("invoice_number", inv.InvoiceNumber).Msg("labor invoiced")
	}

	po, err := e.ensurePayout(ctx, &payout.Payout{
		Type:          payout.TypeLabor,
		FromEntity:    invoice.EntityKTS,
		ToEntity:      invoice.EntityKR,
		Amount:        inv.Total,
		InvoiceID:     inv.ID,
		JobID:         j.ID,
		ContractorID:  contractor,
		SettlementKey: key,
	})
	if err != nil {
		return inv, nil, fmt.Errorf("labor payout: %w", err)
	}
	return inv, po, nil
}

// leadFeeBase is the contract value the lead fee is computed on: the job's,
// falling back to the lead's.
func (e *Engine) leadFeeBase(j *job.Job, l *lead.Lead) types.Money {
	cv := e.inCurrency(j.ContractValue())
	if !cv.IsPositive() && l != nil && l.ContractValue != nil {
		cv = e.inCurrency(*l.ContractValue)
	}
	return cv
}

// laborFigures returns the labor and commission billed by the labor half.
func (e *Engine) laborFigures(j *job.Job) (labor, commission types.Money) {
	return e.inCurrency(j.Costs.LaborActual), e.inCurrency(j.CommissionAmount())
}

// SettlementPending reports whether settling j would still record anything.
// Halves that settlement skips on purpose (no lead, no crew, nothing to
// bill) are not pending. A lead that cannot be resolved keeps the lead fee
// pending since settlement treats it as a failure.
func (e *Engine) SettlementPending(ctx context.Context, j *job.Job) (bool, error) {
	if j.Status != job.StatusPaidInFull {
		return false, nil
	}
	if j.LinkedInvoices.LaborInvoiceID.IsNil() && j.HasCrew() {
		labor, commission := e.laborFigures(j)
		if labor.Add(commission).IsPositive() {
			return true, nil
		}
	}
	if j.LeadID.IsNil() || !j.LinkedInvoices.LeadFeeInvoiceID.IsNil() {
		return false, nil
	}
	if e.inCurrency(j.ContractValue()).IsPositive() {
		return true, nil
	}
	l, err := e.store.GetLead(ctx, j.LeadID)
	if IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return e.leadFeeBase(j, l).IsPositive(), nil
}

// ensurePayout returns the payout already recorded under the key, or
// records p as pending.
func (e *Engine) ensurePayout(ctx context.Context, p *payout.Payout) (*payout.Payout, error) {
	existing, err := e.store.GetPayoutBySettlementKey(ctx, p.SettlementKey)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	now := e.now()
	p.ID = id.NewPayoutID()
	p.Entity = types.NewEntity(now)
	p.Status = payout.StatusPending

	if err := e.store.CreatePayout(ctx, p); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return e.store.GetPayoutBySettlementKey(ctx, p.SettlementKey)
		}
		return nil, err
	}

	e.logger.Info().
		Str("payout_id", p.ID.String()).
		Str("type", string(p.Type)).
		Int64("amount", p.Amount.Amount).
		Msg("payout recorded")
	e.plugins.EmitPayoutCreated(ctx, p)
	return p, nil
}

// linkInvoice writes the settlement invoice back onto the job and records
// it in the job log. It returns nil when the link was already in place.
func (e *Engine) linkInvoice(ctx context.Context, jobID id.JobID, kind SettlementKind, inv *invoice.Invoice) (*job.Job, error) {
	now := e.now()
	j, err := e.store.UpdateJob(ctx, jobID, func(j *job.Job) error {
		switch kind {
		case SettlementLeadFee:
			if j.LinkedInvoices.LeadFeeInvoiceID == inv.ID {
				return errLinked
			}
			j.LinkedInvoices.LeadFeeInvoiceID = inv.ID
		case SettlementLabor:
			if j.LinkedInvoices.LaborInvoiceID == inv.ID {
				return errLinked
			}
			j.LinkedInvoices.LaborInvoiceID = inv.ID
		}
		j.Log = append(j.Log, job.AuditEntry{
			ID:   id.NewAuditID(),
			Type: job.EntrySettlement,
			Note: fmt.Sprintf("%s invoice %s issued for %s", kind, inv.InvoiceNumber, inv.Total),
			At:   now,
		})
		j.Touch(now)
		return nil
	})
	if errors.Is(err, errLinked) {
		return nil, nil
	}
	return j, err
}

// AdvancePayout moves a payout along its lifecycle. Completing a payout
// marks its settlement invoice paid.
func (e *Engine) AdvancePayout(ctx context.Context, payoutID id.PayoutID, to payout.Status, reason string) (*payout.Payout, error) {
	p, err := e.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	from := p.Status
	if !from.CanMoveTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidPayoutStatus, from, to)
	}

	p.Status = to
	p.Touch(e.now())
	if to == payout.StatusFailed {
		p.FailureReason = reason
	} else {
		p.FailureReason = ""
	}
	if err := e.store.UpdatePayout(ctx, p); err != nil {
		return nil, err
	}

	if to == payout.StatusCompleted && !p.InvoiceID.IsNil() {
		if _, err := e.MarkInvoicePaid(ctx, p.InvoiceID); err != nil && !errors.Is(err, ErrInvoicePaid) {
			e.logger.Error().Err(err).Str("payout_id", p.ID.String()).Msg("mark settlement invoice paid")
			return p, err
		}
	}

	e.plugins.EmitPayoutUpdated(ctx, p, from)
	return p, nil
}

// ListPayouts lists payouts.
func (e *Engine) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	return e.store.ListPayouts(ctx, opts)
}
