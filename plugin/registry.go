package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/payout"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  zerolog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onJobCreated       []OnJobCreated
	onJobTransitioned  []OnJobTransitioned
	onJobUpdated       []OnJobUpdated
	onInvoiceCreated   []OnInvoiceCreated
	onInvoiceSent      []OnInvoiceSent
	onInvoicePaid      []OnInvoicePaid
	onInvoiceReverted  []OnInvoiceReverted
	onPayoutCreated    []OnPayoutCreated
	onPayoutUpdated    []OnPayoutUpdated
	onSettlementFailed []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  zerolog.Nop(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger zerolog.Logger) *Registry {
	r.logger = logger.With().Str("component", "plugin").Logger()
	return r
}

// WithTimeout overrides the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnJobCreated); ok {
		r.onJobCreated = append(r.onJobCreated, v)
	}
	if v, ok := p.(OnJobTransitioned); ok {
		r.onJobTransitioned = append(r.onJobTransitioned, v)
	}
	if v, ok := p.(OnJobUpdated); ok {
		r.onJobUpdated = append(r.onJobUpdated, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceSent); ok {
		r.onInvoiceSent = append(r.onInvoiceSent, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceReverted); ok {
		r.onInvoiceReverted = append(r.onInvoiceReverted, v)
	}
	if v, ok := p.(OnPayoutCreated); ok {
		r.onPayoutCreated = append(r.onPayoutCreated, v)
	}
	if v, ok := p.(OnPayoutUpdated); ok {
		r.onPayoutUpdated = append(r.onPayoutUpdated, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()
	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()
	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	plugins := r.onJobCreated
	r.mu.RUnlock()
	dispatch(ctx, r, "OnJobCreated", plugins, func(p OnJobCreated) error { return p.OnJobCreated(ctx, j) })
}

func (r *Registry) EmitJobTransitioned(ctx context.Context, j *job.Job, from, to job.Status) {
	r.mu.RLock()
	plugins := r.onJobTransitioned
	r.mu.RUnlock()
	dispatch(ctx, r, "OnJobTransitioned", plugins, func(p OnJobTransitioned) error {
		return p.OnJobTransitioned(ctx, j, from, to)
	})
}

func (r *Registry) EmitJobUpdated(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	plugins := r.onJobUpdated
	r.mu.RUnlock()
	dispatch(ctx, r, "OnJobUpdated", plugins, func(p OnJobUpdated) error { return p.OnJobUpdated(ctx, j) })
}

func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceCreated
	r.mu.RUnlock()
	dispatch(ctx, r, "OnInvoiceCreated", plugins, func(p OnInvoiceCreated) error { return p.OnInvoiceCreated(ctx, inv) })
}

func (r *Registry) EmitInvoiceSent(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceSent
	r.mu.RUnlock()
	dispatch(ctx, r, "OnInvoiceSent", plugins, func(p OnInvoiceSent) error { return p.OnInvoiceSent(ctx, inv) })
}

func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoicePaid
	r.mu.RUnlock()
	dispatch(ctx, r, "OnInvoicePaid", plugins, func(p OnInvoicePaid) error { return p.OnInvoicePaid(ctx, inv) })
}

func (r *Registry) EmitInvoiceReverted(ctx context.Context, inv *invoice.Invoice, from invoice.Status) {
	r.mu.RLock()
	plugins := r.onInvoiceReverted
	r.mu.RUnlock()
	dispatch(ctx, r, "OnInvoiceReverted", plugins, func(p OnInvoiceReverted) error {
		return p.OnInvoiceReverted(ctx, inv, from)
	})
}

func (r *Registry) EmitPayoutCreated(ctx context.Context, po *payout.Payout) {
	r.mu.RLock()
	plugins := r.onPayoutCreated
	r.mu.RUnlock()
	dispatch(ctx, r, "OnPayoutCreated", plugins, func(p OnPayoutCreated) error { return p.OnPayoutCreated(ctx, po) })
}

func (r *Registry) EmitPayoutUpdated(ctx context.Context, po *payout.Payout, from payout.Status) {
	r.mu.RLock()
	plugins := r.onPayoutUpdated
	r.mu.RUnlock()
	dispatch(ctx, r, "OnPayoutUpdated", plugins, func(p OnPayoutUpdated) error {
		return p.OnPayoutUpdated(ctx, po, from)
	})
}

func (r *Registry) EmitSettlementFailed(ctx context.Context, jobID id.JobID, kind string, err error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()
	dispatch(ctx, r, "OnSettlementFailed", plugins, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, jobID, kind, err)
	})
}

func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn().
				Str("plugin", p.Name()).
				Str("hook", hook).
				Err(err).
				Msg("plugin hook failed")
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
