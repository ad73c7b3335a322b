package jobledger

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("jobledger: not found")
	ErrAlreadyExists = errors.New("jobledger: already exists")
	ErrInvalidInput  = errors.New("jobledger: invalid input")
	ErrConflict      = errors.New("jobledger: concurrent modification")

	// Pipeline errors
	ErrJobNotFound        = errors.New("jobledger: job not found")
	ErrInvalidTransition  = errors.New("jobledger: invalid transition")
	ErrPermissionDenied   = errors.New("jobledger: permission denied")
	ErrRequirementsNotMet = errors.New("jobledger: requirements not met")
	ErrStatusConflict     = errors.New("jobledger: job status changed concurrently")

	// Invoice errors
	ErrInvoiceNotFound      = errors.New("jobledger: invoice not found")
	ErrInvalidInvoiceStatus = errors.New("jobledger: invalid invoice status change")
	ErrInvoicePaid          = errors.New("jobledger: invoice already paid")
	ErrSequenceFailed       = errors.New("jobledger: invoice sequence allocation failed")

	// Settlement errors
	ErrSettlementFailed    = errors.New("jobledger: settlement failed")
	ErrPayoutNotFound      = errors.New("jobledger: payout not found")
	ErrInvalidPayoutStatus = errors.New("jobledger: invalid payout status change")
	ErrLeadNotFound        = errors.New("jobledger: lead not found")

	// Reporting errors
	ErrReportFailed = errors.New("jobledger: report generation failed")

	// Store errors
	ErrStoreClosed     = errors.New("jobledger: store is closed")
	ErrMigrationFailed = errors.New("jobledger: migration failed")
)

// TransitionError carries the job and edge a transition failed on.
type TransitionError struct {
	JobID string
	From  string
	To    string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s %s->%s: %v", e.JobID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// RequirementsError lists every unmet requirement for a transition.
type RequirementsError struct {
	Unmet []string
}

func (e *RequirementsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRequirementsNotMet, strings.Join(e.Unmet, "; "))
}

// Is matches ErrRequirementsNotMet.
func (e *RequirementsError) Is(target error) bool { return target == ErrRequirementsNotMet }

// SettlementKind names one half of a job settlement.
type SettlementKind string

const (
	SettlementLeadFee SettlementKind = "lead_fee"
	SettlementLabor   SettlementKind = "labor"
)

// SettlementError reports a failed half of a settlement. It never aborts
// the transition that triggered it.
type SettlementError struct {
	Kind  SettlementKind
	JobID string
	Err   error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s (%s, job %s): %v", ErrSettlementFailed, e.Kind, e.JobID, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrSettlementFailed, e.Err} }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("jobledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "jobledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("jobledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPayoutNotFound) ||
		errors.Is(err, ErrLeadNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSequenceFailed) ||
		errors.Is(err, ErrReportFailed)
}
