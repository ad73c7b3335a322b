// Package lead models converted leads, the source of lead-fee settlements.
package lead

import (
	"context"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/types"
)

type Lead struct {
	types.Entity
	ID            id.LeadID    `json:"id"`
	Source        string       `json:"source"`
	CustomerName  string       `json:"customer_name"`
	ContractValue *types.Money `json:"contract_value,omitempty"`
}

// Registry resolves leads for settlement.
type Registry interface {
	GetLead(ctx context.Context, leadID id.LeadID) (*Lead, error)
}

type Store interface {
	Registry
	CreateLead(ctx context.Context, l *Lead) error
}
