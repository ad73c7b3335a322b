package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kdgroup/jobledger"
	audithook "github.com/kdgroup/jobledger/audit_hook"
	"github.com/kdgroup/jobledger/config"
	"github.com/kdgroup/jobledger/internal/logger"
	"github.com/kdgroup/jobledger/observability"
	"github.com/kdgroup/jobledger/report"
	"github.com/kdgroup/jobledger/sheets"
	"github.com/kdgroup/jobledger/store"
	"github.com/kdgroup/jobledger/store/memory"
	"github.com/kdgroup/jobledger/store/mongo"
	"github.com/kdgroup/jobledger/store/postgres"
	"github.com/kdgroup/jobledger/store/sqlite"
)

func openStore(ctx context.Context, c config.Config) (store.Store, error) {
	l := logger.WithComponent("store")
	switch c.Store.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, c.Store.URL, l)
	case config.DriverSQLite:
		return sqlite.Open(c.Store.URL, l)
	case config.DriverMongo:
		return mongo.Open(ctx, c.Store.URL, c.Store.Database, l)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
}

// app is a started engine plus the metrics registry its plugins report to.
type app struct {
	engine  *jobledger.Engine
	metrics *prometheus.Registry
}

func (a *app) Close() error { return a.engine.Stop() }

func newApp(ctx context.Context, c config.Config) (*app, error) {
	s, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditLog := logger.WithComponent("audit")
	opts := append(c.EngineOptions(),
		jobledger.WithLogger(logger.WithComponent("engine")),
		jobledger.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		jobledger.WithPlugin(audithook.New(
			audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
				auditLog.Info().
					Str("action", evt.Action).
					Str("resource", evt.Resource).
					Str("resource_id", evt.ResourceID).
					Str("outcome", evt.Outcome).
					Str("severity", evt.Severity).
					Interface("metadata", evt.Metadata).
					Msg("audit")
				return nil
			}),
			audithook.WithLogger(auditLog),
		)),
	)

	if c.Reports.SheetURL != "" {
		creds, err := os.ReadFile(c.Reports.CredentialsFile)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		sink, err := sheets.New(ctx, c.Reports.SheetURL, creds, logger.WithComponent("sheets"))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		opts = append(opts, jobledger.WithReportSink(sink,
			report.WithBatchSize(c.Reports.BatchSize),
			report.WithRateLimit(c.Reports.WritesPerSecond, 1),
		))
	}

	e := jobledger.New(s, opts...)
	if err := e.Start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return &app{engine: e, metrics: reg}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
