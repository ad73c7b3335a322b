package audithook

// Action constants for audit events.
const (
	// Job actions
	ActionJobCreated      = "job.created"
	ActionJobTransitioned = "job.transitioned"
	ActionJobRolledBack   = "job.rolled_back"
	ActionJobUpdated      = "job.updated"

	// Invoice actions
	ActionInvoiceCreated  = "invoice.created"
	ActionInvoiceSent     = "invoice.sent"
	ActionInvoicePaid     = "invoice.paid"
	ActionInvoiceReverted = "invoice.reverted"

	// Payout actions
	ActionPayoutCreated = "payout.created"
	ActionPayoutUpdated = "payout.updated"
	ActionPayoutFailed  = "payout.failed"

	// Settlement actions
	ActionSettlementFailed = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourceJob        = "job"
	ResourceInvoice    = "invoice"
	ResourcePayout     = "payout"
	ResourceSettlement = "settlement"
)

// Category constants for audit events.
const (
	CategoryPipeline   = "pipeline"
	CategoryBilling    = "billing"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
