package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/store"
	"github.com/kdgroup/jobledger/store/mongo"
	"github.com/kdgroup/jobledger/store/storetest"
)

// Set JOBLEDGER_MONGO_URL to run against a live server. Each subtest gets
// its own database, dropped afterwards.
func TestConformance(t *testing.T) {
	uri := os.Getenv("JOBLEDGER_MONGO_URL")
	if uri == "" {
		t.Skip("JOBLEDGER_MONGO_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		suffix := id.NewJobID().String()
		s, err := mongo.Open(ctx, uri, "jobledger_test_"+suffix[len(suffix)-12:], zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			_ = s.Database().Drop(ctx)
			_ = s.Close()
		})
		if err := s.Migrate(ctx); err != nil {
			t.Fatal(err)
		}
		return s
	})
}
