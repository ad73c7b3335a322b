package invoice

import (
	"context"
	"time"

	"github.com/kdgroup/jobledger/id"
)

type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetInvoiceBySettlementKey(ctx context.Context, key string) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	// NextSequence atomically increments and returns the counter for
	// (prefix, year). The first call returns 1.
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
}

type ListOpts struct {
	Status Status
	Entity EntityCode // matches either party
	JobID  id.JobID
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// Matches reports whether inv satisfies the filter. Backends that cannot
// push a condition down filter with it.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.Status != "" && inv.Status != o.Status {
		return false
	}
	if o.Entity != "" && inv.From.Entity != o.Entity && inv.To.Entity != o.Entity {
		return false
	}
	if !o.JobID.IsNil() && inv.JobID != o.JobID {
		return false
	}
	if !o.Start.IsZero() && inv.CreatedAt.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !inv.CreatedAt.Before(o.End) {
		return false
	}
	return true
}
