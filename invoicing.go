package jobledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/types"
)

// InvoiceInput describes a new ledger invoice. Line totals, subtotal,
// total and due date are always computed by the ledger.
type InvoiceInput struct {
	From          invoice.Party      `json:"from"`
	To            invoice.Party      `json:"to"`
	LineItems     []invoice.LineItem `json:"line_items"`
	Discount      types.Money        `json:"discount"`
	JobID         id.JobID           `json:"job_id"`
	Notes         string             `json:"notes,omitempty"`
	Prefix        string             `json:"prefix,omitempty"`
	SettlementKey string             `json:"settlement_key,omitempty"`
}

func (e *Engine) validateInvoice(in *InvoiceInput) error {
	var errs MultiError
	if !in.From.Entity.IsValid() {
		errs.Add(ValidationError{Field: "from.entity", Message: fmt.Sprintf("unknown entity %q", in.From.Entity)})
	}
	if !in.To.Entity.IsValid() {
		errs.Add(ValidationError{Field: "to.entity", Message: fmt.Sprintf("unknown entity %q", in.To.Entity)})
	}
	if len(in.LineItems) == 0 {
		errs.Add(ValidationError{Field: "line_items", Message: "at least one line item is required"})
	}
	for i, it := range in.LineItems {
		if it.Quantity.IsNegative() {
			errs.Add(ValidationError{Field: fmt.Sprintf("line_items[%d].quantity", i), Message: "must not be negative"})
		}
		if it.Rate.Currency != "" && it.Rate.Currency != e.currency {
			errs.Add(ValidationError{Field: fmt.Sprintf("line_items[%d].rate", i), Message: "currency must be " + e.currency})
		}
	}
	if in.Discount.IsNegative() {
		errs.Add(ValidationError{Field: "discount", Message: "must not be negative"})
	}
	if in.Discount.Currency != "" && in.Discount.Currency != e.currency {
		errs.Add(ValidationError{Field: "discount", Message: "currency must be " + e.currency})
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// CreateInvoice adds a draft invoice to the ledger with a freshly
// allocated number.
func (e *Engine) CreateInvoice(ctx context.Context, in InvoiceInput) (*invoice.Invoice, error) {
	return e.createInvoice(ctx, in, invoice.StatusDraft)
}

func (e *Engine) createInvoice(ctx context.Context, in InvoiceInput, status invoice.Status) (*invoice.Invoice, error) {
	if err := e.validateInvoice(&in); err != nil {
		return nil, err
	}
	if in.From.Name == "" {
		in.From.Name = e.names[in.From.Entity]
	}
	if in.To.Name == "" {
		in.To.Name = e.names[in.To.Entity]
	}
	prefix := in.Prefix
	if prefix == "" {
		prefix = invoice.PrefixFor(in.From.Entity)
	}

	number, err := e.GenerateInvoiceNumber(ctx, prefix)
	if err != nil {
		return nil, err
	}

	for i := range in.LineItems {
		if in.LineItems[i].Rate.Currency == "" {
			in.LineItems[i].Rate.Currency = e.currency
		}
	}
	if in.Discount.Currency == "" {
		in.Discount.Currency = e.currency
	}
	items, totals := invoice.ComputeTotals(in.LineItems, in.Discount)

	now := e.now()
	inv := &invoice.Invoice{
		Entity:        types.NewEntity(now),
		ID:            id.NewInvoiceID(),
		InvoiceNumber: number,
		From:          in.From,
		To:            in.To,
		LineItems:     items,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Total:         totals.Total,
		Status:        status,
		DueDate:       now.AddDate(0, 0, e.netTermsDays),
		JobID:         in.JobID,
		SettlementKey: in.SettlementKey,
		Notes:         in.Notes,
	}
	if status == invoice.StatusSent {
		inv.SentAt = &now
	}

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("from", string(inv.From.Entity)).
		Str("to", string(inv.To.Entity)).
		Int64("total", inv.Total.Amount).
		Msg("invoice created")
	e.plugins.EmitInvoiceCreated(ctx, inv)
	if status == invoice.StatusSent {
		e.plugins.EmitInvoiceSent(ctx, inv)
	}
	return inv, nil
}

// GenerateInvoiceNumber allocates the next PREFIX-YYYY-NNNN number. The
// counter is incremented atomically in the store, so concurrent callers
// always receive distinct numbers.
func (e *Engine) GenerateInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", ValidationError{Field: "prefix", Message: "required"}
	}
	year := e.now().Year()
	seq, err := e.store.NextSequence(ctx, prefix, year)
	if err != nil {
		return "", fmt.Errorf("%w: %s-%d: %w", ErrSequenceFailed, prefix, year, err)
	}
	return invoice.FormatNumber(prefix, year, seq), nil
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ListInvoices lists ledger invoices.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, opts)
}

// MarkInvoiceSent moves a draft invoice to sent.
func (e *Engine) MarkInvoiceSent(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidInvoiceStatus, inv.InvoiceNumber, inv.Status)
	}

	now := e.now()
	inv.Status = invoice.StatusSent
	inv.SentAt = &now
	inv.Touch(now)
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceSent(ctx, inv)
	return inv, nil
}

// MarkInvoicePaid records payment. Draft invoices are implicitly sent.
func (e *Engine) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.StatusPaid {
		return nil, fmt.Errorf("%w: %s", ErrInvoicePaid, inv.InvoiceNumber)
	}

	now := e.now()
	if inv.SentAt == nil {
		inv.SentAt = &now
	}
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &now
	inv.Touch(now)
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.logger.Info().Str("invoice_number", inv.InvoiceNumber).Int64("total", inv.Total.Amount).Msg("invoice paid")
	e.plugins.EmitInvoicePaid(ctx, inv)
	return inv, nil
}

// RevertInvoice is the administrative reversal of the normal flow. It moves
// an invoice back to an earlier status and clears the timestamps that no
// longer apply.
func (e *Engine) RevertInvoice(ctx context.Context, invID id.InvoiceID, to invoice.Status) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	from := inv.Status
	if !to.IsValid() || to.Rank() >= from.Rank() {
		return nil, fmt.Errorf("%w: cannot revert %s from %s to %s", ErrInvalidInvoiceStatus, inv.InvoiceNumber, from, to)
	}

	inv.Status = to
	inv.PaidAt = nil
	if to == invoice.StatusDraft {
		inv.SentAt = nil
	}
	inv.Touch(e.now())
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.logger.Warn().Str("invoice_number", inv.InvoiceNumber).Str("from", string(from)).Str("to", string(to)).Msg("invoice reverted")
	e.plugins.EmitInvoiceReverted(ctx, inv, from)
	return inv, nil
}

// ensureSettlementInvoice returns the invoice already minted for key, or
// creates it as sent. A concurrent creator winning the unique key is
// treated as success.
func (e *Engine) ensureSettlementInvoice(ctx context.Context, in InvoiceInput) (*invoice.Invoice, bool, error) {
	existing, err := e.store.GetInvoiceBySettlementKey(ctx, in.SettlementKey)
	if err == nil {
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	inv, err := e.createInvoice(ctx, in, invoice.StatusSent)
	if errors.Is(err, ErrAlreadyExists) {
		existing, err = e.store.GetInvoiceBySettlementKey(ctx, in.SettlementKey)
		return existing, false, err
	}
	return inv, err == nil, err
}
