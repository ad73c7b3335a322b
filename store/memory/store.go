// Package memory is an in-process store.Store for tests and single-node use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/store"
)

var _ store.Store = (*Store)(nil)

type seqKey struct {
	prefix string
	year   int
}

type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	invoices     map[string]*invoice.Invoice
	invoiceByKey map[string]string
	invoiceByNum map[string]string
	sequences    map[seqKey]int64

	payouts     map[string]*payout.Payout
	payoutByKey map[string]string

	leads map[string]*lead.Lead

	closed bool
}

func New() *Store {
	return &Store{
		jobs:         make(map[string]*job.Job),
		invoices:     make(map[string]*invoice.Invoice),
		invoiceByKey: make(map[string]string),
		invoiceByNum: make(map[string]string),
		sequences:    make(map[seqKey]int64),
		payouts:      make(map[string]*payout.Payout),
		payoutByKey:  make(map[string]string),
		leads:        make(map[string]*lead.Lead),
	}
}

// Job Store implementation

func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID.String()]; exists {
		return jobledger.ErrAlreadyExists
	}
	s.jobs[j.ID.String()] = j.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if j, ok := s.jobs[jobID.String()]; ok {
		return j.Clone(), nil
	}
	return nil, jobledger.ErrJobNotFound
}

func (s *Store) UpdateJob(_ context.Context, jobID id.JobID, fn job.MutateFunc) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, jobledger.ErrJobNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version = current.Version + 1
	s.jobs[jobID.String()] = working
	return working.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if opts.Status == "" || j.Status == opts.Status {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID.String() < result[b].ID.String() })

	return page(result, opts.Offset, opts.Limit), nil
}

// Invoice Store implementation

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return jobledger.ErrAlreadyExists
	}
	if _, exists := s.invoiceByNum[inv.InvoiceNumber]; exists && inv.InvoiceNumber != "" {
		return jobledger.ErrAlreadyExists
	}
	if _, exists := s.invoiceByKey[inv.SettlementKey]; exists && inv.SettlementKey != "" {
		return jobledger.ErrAlreadyExists
	}

	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	if inv.InvoiceNumber != "" {
		s.invoiceByNum[inv.InvoiceNumber] = inv.ID.String()
	}
	if inv.SettlementKey != "" {
		s.invoiceByKey[inv.SettlementKey] = inv.ID.String()
	}
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, jobledger.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceBySettlementKey(_ context.Context, key string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if invID, ok := s.invoiceByKey[key]; ok {
		return cloneInvoice(s.invoices[invID]), nil
	}
	return nil, jobledger.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if opts.Matches(inv) {
			result = append(result, cloneInvoice(inv))
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID.String() < result[b].ID.String() })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; !exists {
		return jobledger.ErrInvoiceNotFound
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) NextSequence(_ context.Context, prefix string, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, jobledger.ErrStoreClosed
	}
	k := seqKey{prefix: prefix, year: year}
	s.sequences[k]++
	return s.sequences[k], nil
}

// Payout Store implementation

func (s *Store) CreatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payouts[p.ID.String()]; exists {
		return jobledger.ErrAlreadyExists
	}
	if _, exists := s.payoutByKey[p.SettlementKey]; exists && p.SettlementKey != "" {
		return jobledger.ErrAlreadyExists
	}
	cp := *p
	s.payouts[p.ID.String()] = &cp
	if p.SettlementKey != "" {
		s.payoutByKey[p.SettlementKey] = p.ID.String()
	}
	return nil
}

func (s *Store) GetPayout(_ context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payouts[payoutID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, jobledger.ErrPayoutNotFound
}

func (s *Store) GetPayoutBySettlementKey(_ context.Context, key string) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pid, ok := s.payoutByKey[key]; ok {
		cp := *s.payouts[pid]
		return &cp, nil
	}
	return nil, jobledger.ErrPayoutNotFound
}

func (s *Store) ListPayouts(_ context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payout.Payout, 0)
	for _, p := range s.payouts {
		if opts.Matches(p) {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID.String() < result[b].ID.String() })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payouts[p.ID.String()]; !exists {
		return jobledger.ErrPayoutNotFound
	}
	cp := *p
	s.payouts[p.ID.String()] = &cp
	return nil
}

// Lead Store implementation

func (s *Store) CreateLead(_ context.Context, l *lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[l.ID.String()]; exists {
		return jobledger.ErrAlreadyExists
	}
	cp := *l
	s.leads[l.ID.String()] = &cp
	return nil
}

func (s *Store) GetLead(_ context.Context, leadID id.LeadID) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.leads[leadID.String()]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, jobledger.ErrLeadNotFound
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return jobledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.LineItems = append([]invoice.LineItem(nil), inv.LineItems...)
	return &cp
}

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
