// Package event fans engine events out to in-process subscribers, such as
// realtime dashboards. Subscribers receive on a channel and release it with
// Cancel.
package event

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/plugin"
)

type Kind string

const (
	JobCreated       Kind = "job.created"
	JobTransitioned  Kind = "job.transitioned"
	JobUpdated       Kind = "job.updated"
	InvoiceCreated   Kind = "invoice.created"
	InvoiceSent      Kind = "invoice.sent"
	InvoicePaid      Kind = "invoice.paid"
	InvoiceReverted  Kind = "invoice.reverted"
	PayoutCreated    Kind = "payout.created"
	PayoutUpdated    Kind = "payout.updated"
	SettlementFailed Kind = "settlement.failed"
)

// Event is a single notification. Exactly one of Job, Invoice or Payout is
// set, depending on Kind.
type Event struct {
	Kind    Kind             `json:"kind"`
	At      time.Time        `json:"at"`
	JobID   id.JobID         `json:"job_id"`
	From    string           `json:"from,omitempty"`
	To      string           `json:"to,omitempty"`
	Job     *job.Job         `json:"job,omitempty"`
	Invoice *invoice.Invoice `json:"invoice,omitempty"`
	Payout  *payout.Payout   `json:"payout,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// DefaultBuffer is the channel capacity of each subscription.
const DefaultBuffer = 64

// Bus is a non-blocking publish/subscribe hub. A slow subscriber loses
// events instead of stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: DefaultBuffer}
}

// Subscription is a cancellable handle on a stream of events.
type Subscription struct {
	bus     *Bus
	kinds   []Kind
	ch      chan Event
	once    sync.Once
	dropped atomic.Int64
}

// C returns the receive channel. It is closed by Cancel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Subscribe returns a subscription for the given kinds, or for every kind
// when none are given.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	s := &Subscription{bus: b, kinds: kinds, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close cancels every subscription.
func (b *Bus) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Cancel()
	}
}

// ──────────────────────────────────────────────────
// Plugin hooks
// ──────────────────────────────────────────────────

var (
	_ plugin.OnJobCreated       = (*Bus)(nil)
	_ plugin.OnJobTransitioned  = (*Bus)(nil)
	_ plugin.OnJobUpdated       = (*Bus)(nil)
	_ plugin.OnInvoiceCreated   = (*Bus)(nil)
	_ plugin.OnInvoiceSent      = (*Bus)(nil)
	_ plugin.OnInvoicePaid      = (*Bus)(nil)
	_ plugin.OnInvoiceReverted  = (*Bus)(nil)
	_ plugin.OnPayoutCreated    = (*Bus)(nil)
	_ plugin.OnPayoutUpdated    = (*Bus)(nil)
	_ plugin.OnSettlementFailed = (*Bus)(nil)
	_ plugin.OnShutdown         = (*Bus)(nil)
)

func (b *Bus) Name() string { return "event-bus" }

func (b *Bus) OnShutdown(_ context.Context) error {
	b.Close()
	return nil
}

func (b *Bus) OnJobCreated(_ context.Context, j *job.Job) error {
	b.Publish(Event{Kind: JobCreated, JobID: j.ID, Job: j})
	return nil
}

func (b *Bus) OnJobTransitioned(_ context.Context, j *job.Job, from, to job.Status) error {
	b.Publish(Event{Kind: JobTransitioned, JobID: j.ID, From: string(from), To: string(to), Job: j})
	return nil
}

func (b *Bus) OnJobUpdated(_ context.Context, j *job.Job) error {
	b.Publish(Event{Kind: JobUpdated, JobID: j.ID, Job: j})
	return nil
}

func (b *Bus) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	b.Publish(Event{Kind: InvoiceCreated, JobID: inv.JobID, Invoice: inv})
	return nil
}

func (b *Bus) OnInvoiceSent(_ context.Context, inv *invoice.Invoice) error {
	b.Publish(Event{Kind: InvoiceSent, JobID: inv.JobID, Invoice: inv})
	return nil
}

func (b *Bus) OnInvoicePaid(_ context.Context, inv *invoice.Invoice) error {
	b.Publish(Event{Kind: InvoicePaid, JobID: inv.JobID, Invoice: inv})
	return nil
}

func (b *Bus) OnInvoiceReverted(_ context.Context, inv *invoice.Invoice, from invoice.Status) error {
	b.Publish(Event{Kind: InvoiceReverted, JobID: inv.JobID, From: string(from), To: string(inv.Status), Invoice: inv})
	return nil
}

func (b *Bus) OnPayoutCreated(_ context.Context, p *payout.Payout) error {
	b.Publish(Event{Kind: PayoutCreated, JobID: p.JobID, Payout: p})
	return nil
}

func (b *Bus) OnPayoutUpdated(_ context.Context, p *payout.Payout, from payout.Status) error {
	b.Publish(Event{Kind: PayoutUpdated, JobID: p.JobID, From: string(from), To: string(p.Status), Payout: p})
	return nil
}

func (b *Bus) OnSettlementFailed(_ context.Context, jobID id.JobID, kind string, err error) error {
	b.Publish(Event{Kind: SettlementFailed, JobID: jobID, To: kind, Error: err.Error()})
	return nil
}
