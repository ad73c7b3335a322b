package jobledger

import (
	"context"
	"strings"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/types"
)

// JobInput is what lead conversion supplies when a job enters the pipeline.
type JobInput struct {
	CustomerName  string       `json:"customer_name"`
	Address       string       `json:"address,omitempty"`
	LeadID        id.LeadID    `json:"lead_id"`
	ContractValue *types.Money `json:"contract_value,omitempty"`
}

// CreateLead records a converted lead.
func (e *Engine) CreateLead(ctx context.Context, l *lead.Lead) error {
	if l.Source == "" {
		return ValidationError{Field: "source", Message: "required"}
	}
	if l.ContractValue != nil {
		var errs MultiError
		cv := e.ledgerMoney(&errs, "contract_value", *l.ContractValue)
		if errs.HasErrors() {
			return errs
		}
		l.ContractValue = &cv
	}
	if l.ID.IsNil() {
		l.ID = id.NewLeadID()
	}
	l.Entity = types.NewEntity(e.now())
	return e.store.CreateLead(ctx, l)
}

// GetLead retrieves a lead by ID.
func (e *Engine) GetLead(ctx context.Context, leadID id.LeadID) (*lead.Lead, error) {
	return e.store.GetLead(ctx, leadID)
}

// CreateJob puts a job into the pipeline at the lead stage.
func (e *Engine) CreateJob(ctx context.Context, in JobInput) (*job.Job, error) {
	if in.CustomerName == "" {
		return nil, ValidationError{Field: "customer_name", Message: "required"}
	}

	if !in.LeadID.IsNil() {
		l, err := e.store.GetLead(ctx, in.LeadID)
		if err != nil {
			return nil, err
		}
		if in.ContractValue == nil && l.ContractValue != nil {
			cv := *l.ContractValue
			in.ContractValue = &cv
		}
	}

	if in.ContractValue != nil {
		var errs MultiError
		cv := e.ledgerMoney(&errs, "contract_value", *in.ContractValue)
		if errs.HasErrors() {
			return nil, errs
		}
		in.ContractValue = &cv
	}

	j := job.New(in.CustomerName, in.LeadID)
	now := e.now()
	j.Entity = types.NewEntity(now)
	j.Dates[job.StatusLead] = now
	j.Address = in.Address
	j.Commission.ContractValue = in.ContractValue

	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	e.logger.Info().Str("job_id", j.ID.String()).Str("lead_id", in.LeadID.String()).Msg("job created")
	e.plugins.EmitJobCreated(ctx, j)
	return j, nil
}

// GetJob retrieves a job by ID.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// ListJobs lists jobs, optionally filtered by stage.
func (e *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return e.store.ListJobs(ctx, opts)
}

// UpdateJobDetails applies a typed patch to a job's working data. A note
// on the patch is appended to the communication log.
func (e *Engine) UpdateJobDetails(ctx context.Context, jobID id.JobID, p job.Patch, actorID string, role job.Role) (*job.Job, error) {
	if p.IsEmpty() && p.Note == "" {
		return nil, ValidationError{Field: "patch", Message: "nothing to update"}
	}
	if err := e.normalizePatch(&p); err != nil {
		return nil, err
	}

	now := e.now()
	j, err := e.store.UpdateJob(ctx, jobID, func(j *job.Job) error {
		p.Apply(j)
		if p.Note != "" {
			j.Log = append(j.Log, job.AuditEntry{
				ID:        id.NewAuditID(),
				Type:      job.EntryNote,
				ActorID:   actorID,
				ActorRole: role,
				Note:      p.Note,
				At:        now,
			})
		}
		j.Touch(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitJobUpdated(ctx, j)
	return j, nil
}

// ledgerMoney returns m in the ledger currency. An amount entered without a
// currency is taken to be in the ledger currency. Any other currency is
// recorded on errs.
func (e *Engine) ledgerMoney(errs *MultiError, field string, m types.Money) types.Money {
	switch c := strings.ToLower(m.Currency); c {
	case "", e.currency:
		m.Currency = e.currency
	default:
		errs.Add(ValidationError{Field: field, Message: "currency must be " + e.currency})
	}
	return m
}

// normalizePatch rewrites every money field of p into the ledger currency.
// Pointer fields are replaced, never written through.
func (e *Engine) normalizePatch(p *job.Patch) error {
	var errs MultiError
	if p.ContractValue != nil {
		v := e.ledgerMoney(&errs, "contract_value", *p.ContractValue)
		p.ContractValue = &v
	}
	if p.Commission != nil {
		v := e.ledgerMoney(&errs, "commission", *p.Commission)
		p.Commission = &v
	}
	if p.FinalPayment != nil {
		fp := *p.FinalPayment
		fp.Amount = e.ledgerMoney(&errs, "final_payment.amount", fp.Amount)
		p.FinalPayment = &fp
	}
	if p.Costs != nil {
		c := *p.Costs
		c.MaterialProjected = e.ledgerMoney(&errs, "costs.material_projected", c.MaterialProjected)
		c.MaterialActual = e.ledgerMoney(&errs, "costs.material_actual", c.MaterialActual)
		c.LaborProjected = e.ledgerMoney(&errs, "costs.labor_projected", c.LaborProjected)
		c.LaborActual = e.ledgerMoney(&errs, "costs.labor_actual", c.LaborActual)
		p.Costs = &c
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
