package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/store"
	"github.com/kdgroup/jobledger/store/memory"
	"github.com/kdgroup/jobledger/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
}

func TestClosedStore(t *testing.T) {
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, jobledger.ErrStoreClosed) {
		t.Errorf("Ping after Close: got %v", err)
	}
	if _, err := s.NextSequence(context.Background(), "KR", 2026); !errors.Is(err, jobledger.ErrStoreClosed) {
		t.Errorf("NextSequence after Close: got %v", err)
	}
}
