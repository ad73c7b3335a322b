package jobledger

import (
	"context"
	"errors"
	"time"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/job"
)

// warrantyYears is the workmanship warranty granted on completion.
const warrantyYears = 1

// TransitionRequest asks to move a job from one stage to another.
// RequestID identifies the triggering event; a redelivered request with
// the same id is answered from the log instead of being applied twice.
type TransitionRequest struct {
	JobID          id.JobID   `json:"job_id"`
	From           job.Status `json:"from"`
	To             job.Status `json:"to"`
	ActorID        string     `json:"actor_id"`
	ActorRole      job.Role   `json:"actor_role"`
	Note           string     `json:"note,omitempty"`
	SkipValidation bool       `json:"skip_validation,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
}

// TransitionResult is the committed job plus any settlement outcome.
type TransitionResult struct {
	Job              *job.Job          `json:"job"`
	Replayed         bool              `json:"replayed"`
	Settlement       *SettlementResult `json:"settlement,omitempty"`
	SettlementErrors []error           `json:"-"`
}

var errReplayed = errors.New("transition already applied")

// Transition validates and commits a stage change. Legality is checked
// before the role, and the stored stage is re-checked inside the atomic
// update so concurrent requests cannot both win. Entering paid_in_full
// triggers settlement, whose failures never undo the transition.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	fail := func(err error) error {
		return &TransitionError{JobID: req.JobID.String(), From: string(req.From), To: string(req.To), Err: err}
	}

	if req.JobID.IsNil() {
		return nil, fail(ValidationError{Field: "job_id", Message: "required"})
	}
	if !job.IsLegal(req.From, req.To) {
		return nil, fail(ErrInvalidTransition)
	}
	if !job.Permits(req.From, req.To, req.ActorRole) {
		return nil, fail(ErrPermissionDenied)
	}

	now := e.now()
	j, err := e.store.UpdateJob(ctx, req.JobID, func(j *job.Job) error {
		if j.HasRequest(req.RequestID) {
			return errReplayed
		}
		if j.Status != req.From {
			return ErrStatusConflict
		}
		if !req.SkipValidation {
			if unmet := job.Unmet(job.Evaluate(j, req.From, req.To)); len(unmet) > 0 {
				return &RequirementsError{Unmet: unmet}
			}
		}
		applyTransition(j, req, now)
		return nil
	})

	result := &TransitionResult{}
	switch {
	case errors.Is(err, errReplayed):
		j, err = e.store.GetJob(ctx, req.JobID)
		if err != nil {
			return nil, fail(err)
		}
		result.Replayed = true
		e.logger.Info().Str("job_id", j.ID.String()).Str("request_id", req.RequestID).Msg("transition replay ignored")
	case err != nil:
		e.logger.Debug().Err(err).Str("job_id", req.JobID.String()).
			Str("from", string(req.From)).Str("to", string(req.To)).Msg("transition rejected")
		return nil, fail(err)
	default:
		e.logger.Info().
			Str("job_id", j.ID.String()).
			Str("from", string(req.From)).
			Str("to", string(req.To)).
			Str("actor_id", req.ActorID).
			Str("actor_role", string(req.ActorRole)).
			Bool("skip_validation", req.SkipValidation).
			Msg("job transitioned")
		e.plugins.EmitJobTransitioned(ctx, j, req.From, req.To)
	}
	result.Job = j

	// A replay still finishes a settlement that was interrupted.
	if req.To == job.StatusPaidInFull && j.Status == job.StatusPaidInFull {
		res := e.settle(ctx, j)
		result.Settlement = res
		for _, f := range res.Failures {
			result.SettlementErrors = append(result.SettlementErrors, f)
		}
		if res.Job != nil {
			result.Job = res.Job
		}
	}

	return result, nil
}

func applyTransition(j *job.Job, req TransitionRequest, now time.Time) {
	j.Status = req.To
	if j.Dates == nil {
		j.Dates = make(map[job.Status]time.Time)
	}
	j.Dates[req.To] = now
	if req.To == job.StatusComplete {
		j.Warranty = &job.Warranty{
			Start:  now,
			End:    now.AddDate(warrantyYears, 0, 0),
			Status: job.WarrantyActive,
		}
	}
	j.Log = append(j.Log, job.AuditEntry{
		ID:        id.NewAuditID(),
		Type:      job.EntryStatusUpdate,
		ActorID:   req.ActorID,
		ActorRole: req.ActorRole,
		From:      req.From,
		To:        req.To,
		Note:      req.Note,
		RequestID: req.RequestID,
		Skipped:   req.SkipValidation,
		At:        now,
	})
	j.Touch(now)
}

// AllowedTransitions lists the stages role may move a job to from the
// given stage.
func (e *Engine) AllowedTransitions(from job.Status, role job.Role) []job.Status {
	return job.Targets(from, role)
}

// CheckRequirements evaluates the rules for moving the job from its current
// stage to the target without changing anything.
func (e *Engine) CheckRequirements(ctx context.Context, jobID id.JobID, to job.Status) ([]job.Requirement, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsLegal(j.Status, to) {
		return nil, &TransitionError{JobID: jobID.String(), From: string(j.Status), To: string(to), Err: ErrInvalidTransition}
	}
	return job.Evaluate(j, j.Status, to), nil
}
