// Package payout holds the intercompany payout records created by settlement.
// Payouts are bookkeeping entries; no money is moved.
package payout

import (
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/types"
)

type Type string

const (
	TypeLeadFee Type = "lead_fee"
	TypeLabor   Type = "labor"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
}

// CanMoveTo reports whether the payout lifecycle allows s -> next.
func (s Status) CanMoveTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Payout tracks the intercompany payment of a settlement invoice. From and
// To follow the invoice: the entity that billed and the entity billed.
type Payout struct {
	types.Entity
	ID            id.PayoutID        `json:"id"`
	Type          Type               `json:"type"`
	FromEntity    invoice.EntityCode `json:"from_entity"`
	ToEntity      invoice.EntityCode `json:"to_entity"`
	Amount        types.Money        `json:"amount"`
	Status        Status             `json:"status"`
	InvoiceID     id.InvoiceID       `json:"invoice_id"`
	JobID         id.JobID           `json:"job_id"`
	LeadID        id.LeadID          `json:"lead_id"`
	ContractorID  string             `json:"contractor_id,omitempty"`
	SettlementKey string             `json:"settlement_key"`
	FailureReason string             `json:"failure_reason,omitempty"`
}
