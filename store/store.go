// Package store defines the composite persistence interface for jobledger.
package store

import (
	"context"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
)

// Store is the unified storage interface for all jobledger records.
// Backends: store/memory, store/postgres, store/sqlite, store/mongo.
type Store interface {
	job.Store
	invoice.Store
	payout.Store
	lead.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
