package payout

import (
	"context"

	"github.com/kdgroup/jobledger/id"
)

type Store interface {
	CreatePayout(ctx context.Context, p *Payout) error
	GetPayout(ctx context.Context, payoutID id.PayoutID) (*Payout, error)
	GetPayoutBySettlementKey(ctx context.Context, key string) (*Payout, error)
	ListPayouts(ctx context.Context, opts ListOpts) ([]*Payout, error)
	UpdatePayout(ctx context.Context, p *Payout) error
}

type ListOpts struct {
	JobID  id.JobID
	Type   Type
	Status Status
	Limit  int
	Offset int
}

// Matches reports whether p satisfies the filter.
func (o ListOpts) Matches(p *Payout) bool {
	if !o.JobID.IsNil() && p.JobID != o.JobID {
		return false
	}
	if o.Type != "" && p.Type != o.Type {
		return false
	}
	if o.Status != "" && p.Status != o.Status {
		return false
	}
	return true
}
