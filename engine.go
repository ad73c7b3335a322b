package jobledger

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger/event"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/plugin"
	"github.com/kdgroup/jobledger/report"
	"github.com/kdgroup/jobledger/store"
)

// Defaults applied by New.
const (
	DefaultNetTermsDays = 30
	DefaultCurrency     = "usd"
)

// DefaultLeadFeePercentage is the share of contract value owed for a lead.
var DefaultLeadFeePercentage = decimal.RequireFromString("0.05")

// DefaultEntityNames are the display names printed on invoices.
var DefaultEntityNames = map[invoice.EntityCode]string{
	invoice.EntityKD:  "KD Lead Generation",
	invoice.EntityKTS: "KTS Contracting",
	invoice.EntityKR:  "KR Renovations",
}

// Engine runs the job pipeline, the invoice ledger and settlement.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	bus     *event.Bus
	logger  zerolog.Logger
	now     func() time.Time

	// Configuration
	netTermsDays int
	leadFeePct   decimal.Decimal
	currency     string
	names        map[invoice.EntityCode]string
	sink         report.Sink
	sinkOpts     []report.RebuilderOption
	rebuilder    *report.Rebuilder
	skipMigrate  bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		plugins:      plugin.NewRegistry(),
		bus:          event.NewBus(),
		logger:       zerolog.Nop(),
		now:          func() time.Time { return time.Now().UTC() },
		netTermsDays: DefaultNetTermsDays,
		leadFeePct:   DefaultLeadFeePercentage,
		currency:     DefaultCurrency,
		names:        make(map[invoice.EntityCode]string, len(DefaultEntityNames)),
	}
	for code, name := range DefaultEntityNames {
		e.names[code] = name
	}
	_ = e.plugins.Register(e.bus) //nolint:errcheck // first registration cannot collide

	for _, opt := range opts {
		opt(e)
	}
	if e.sink != nil {
		opts := append([]report.RebuilderOption{report.WithRebuildLogger(e.logger)}, e.sinkOpts...)
		e.rebuilder = report.NewRebuilder(e.sink, opts...)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("component", "engine").Logger()
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.logger.Warn().Err(err).Str("plugin", p.Name()).Msg("plugin registration skipped")
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) { e.plugins.WithTimeout(d) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNetTermsDays sets the days between invoice creation and due date.
func WithNetTermsDays(days int) Option {
	return func(e *Engine) {
		if days >= 0 {
			e.netTermsDays = days
		}
	}
}

// WithLeadFeePercentage sets the lead fee as a fraction of contract value.
func WithLeadFeePercentage(pct decimal.Decimal) Option {
	return func(e *Engine) {
		if !pct.IsNegative() {
			e.leadFeePct = pct
		}
	}
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = strings.ToLower(currency)
		}
	}
}

// WithEntityName overrides the display name of an entity.
func WithEntityName(code invoice.EntityCode, name string) Option {
	return func(e *Engine) { e.names[code] = name }
}

// WithoutMigrate makes Start skip schema migration.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// WithReportSink enables ExportReports. The rebuilder logs with the
// engine logger unless opts set another one.
func WithReportSink(sink report.Sink, opts ...report.RebuilderOption) Option {
	return func(e *Engine) {
		e.sink = sink
		e.sinkOpts = opts
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info().
		Int("net_terms_days", e.netTermsDays).
		Str("lead_fee_pct", e.leadFeePct.String()).
		Str("currency", e.currency).
		Int("plugins", e.plugins.Count()).
		Msg("jobledger started")

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store exposes the backing store to collaborators such as the reconciler.
func (e *Engine) Store() store.Store { return e.store }

// Subscribe streams engine events of the given kinds, or all kinds when
// none are given. Call Cancel on the returned subscription when done.
func (e *Engine) Subscribe(kinds ...event.Kind) *event.Subscription {
	return e.bus.Subscribe(kinds...)
}

func (e *Engine) party(code invoice.EntityCode, ref string) invoice.Party {
	return invoice.Party{Entity: code, Name: e.names[code], Ref: ref}
}
