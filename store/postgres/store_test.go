package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger/store"
	"github.com/kdgroup/jobledger/store/postgres"
	"github.com/kdgroup/jobledger/store/storetest"
)

// Set JOBLEDGER_POSTGRES_URL to run against a disposable database.
func TestConformance(t *testing.T) {
	url := os.Getenv("JOBLEDGER_POSTGRES_URL")
	if url == "" {
		t.Skip("JOBLEDGER_POSTGRES_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, url, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = s.Close() })
		if err := s.Migrate(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Pool().Exec(ctx, `TRUNCATE jobledger_jobs, jobledger_invoices,
			jobledger_invoice_sequences, jobledger_payouts, jobledger_leads`); err != nil {
			t.Fatal(err)
		}
		return s
	})
}
