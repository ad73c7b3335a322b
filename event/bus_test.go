package event

import (
	"context"
	"errors"
	"testing"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/job"
)

func TestSubscribeFiltersKinds(t *testing.T) {
	b := NewBus()
	all := b.Subscribe()
	failures := b.Subscribe(SettlementFailed)
	defer all.Cancel()
	defer failures.Cancel()

	j := job.New("Rivera", id.Nil)
	_ = b.OnJobTransitioned(context.Background(), j, job.StatusLead, job.StatusSold)
	_ = b.OnSettlementFailed(context.Background(), j.ID, "labor", errors.New("no crew"))

	if got := len(all.C()); got != 2 {
		t.Errorf("unfiltered subscription: got %d events, want 2", got)
	}
	if got := len(failures.C()); got != 1 {
		t.Fatalf("filtered subscription: got %d events, want 1", got)
	}

	e := <-failures.C()
	if e.Kind != SettlementFailed || e.Error != "no crew" || e.JobID != j.ID {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	s.Cancel()
	s.Cancel()

	if _, ok := <-s.C(); ok {
		t.Error("channel should be closed after Cancel")
	}

	b.Publish(Event{Kind: JobCreated})
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(JobUpdated)
	defer s.Cancel()

	for i := 0; i < DefaultBuffer+5; i++ {
		b.Publish(Event{Kind: JobUpdated})
	}

	if got := s.Dropped(); got != 5 {
		t.Errorf("Dropped: got %d, want 5", got)
	}
}

func TestShutdownCancelsAll(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe()
	s2 := b.Subscribe(InvoicePaid)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.C(); ok {
			t.Error("subscription still open after shutdown")
		}
	}
}
