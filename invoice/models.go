package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/types"
)

// Status is the stored lifecycle state. Overdue is derived, never stored.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"

	// DisplayOverdue is only ever produced by DisplayStatus.
	DisplayOverdue = "overdue"
)

// IsValid reports whether s is a storable status.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusSent || s == StatusPaid
}

// Rank orders statuses along the normal draft -> sent -> paid flow.
func (s Status) Rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSent:
		return 1
	case StatusPaid:
		return 2
	}
	return -1
}

// EntityCode identifies a billing party.
type EntityCode string

const (
	EntityKD         EntityCode = "kd"  // Lead generation
	EntityKTS        EntityCode = "kts" // Labor and contractors
	EntityKR         EntityCode = "kr"  // Renovation
	EntityCustomer   EntityCode = "customer"
	EntitySubscriber EntityCode = "subscriber"
)

// InternalEntities are the related companies whose mutual billing is
// intercompany.
var InternalEntities = []EntityCode{EntityKD, EntityKTS, EntityKR}

// IsInternal reports whether e is one of the related companies.
func (e EntityCode) IsInternal() bool {
	return e == EntityKD || e == EntityKTS || e == EntityKR
}

// IsValid reports whether e is a known entity code.
func (e EntityCode) IsValid() bool {
	return e.IsInternal() || e == EntityCustomer || e == EntitySubscriber
}

// Party is one side of an invoice.
type Party struct {
	Entity EntityCode `json:"entity"`
	Name   string     `json:"name"`
	Ref    string     `json:"ref,omitempty"`
}

type Invoice struct {
	types.Entity
	ID            id.InvoiceID `json:"id"`
	InvoiceNumber string       `json:"invoice_number"`
	From          Party        `json:"from"`
	To            Party        `json:"to"`
	LineItems     []LineItem   `json:"line_items"`
	Subtotal      types.Money  `json:"subtotal"`
	Discount      types.Money  `json:"discount"`
	Total         types.Money  `json:"total"`
	Status        Status       `json:"status"`
	DueDate       time.Time    `json:"due_date"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	PaidAt        *time.Time   `json:"paid_at,omitempty"`
	JobID         id.JobID     `json:"job_id"`
	SettlementKey string       `json:"settlement_key,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        types.Money     `json:"rate"`
	Total       types.Money     `json:"total"`
}

// NewLineItem builds a line item with its total computed.
func NewLineItem(description string, quantity decimal.Decimal, rate types.Money) LineItem {
	return LineItem{
		Description: description,
		Quantity:    quantity,
		Rate:        rate,
		Total:       rate.MulDecimal(quantity),
	}
}

// IsIntercompany reports whether both parties are internal companies.
func (inv *Invoice) IsIntercompany() bool {
	return inv.From.Entity.IsInternal() && inv.To.Entity.IsInternal()
}

// IsOverdue reports whether a sent invoice is past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.Status == StatusSent && inv.DueDate.Before(now)
}

// DisplayStatus returns the stored status, or "overdue" for sent invoices
// past due.
func (inv *Invoice) DisplayStatus(now time.Time) string {
	if inv.IsOverdue(now) {
		return DisplayOverdue
	}
	return string(inv.Status)
}

// PaidDate is the date revenue is recognized: PaidAt, falling back to CreatedAt.
func (inv *Invoice) PaidDate() time.Time {
	if inv.PaidAt != nil {
		return *inv.PaidAt
	}
	return inv.CreatedAt
}
