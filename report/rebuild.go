package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Table is a named, fully materialized report ready to be written out.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Sink receives report rebuilds. Rows written to a Staging area are not
// visible to readers until Commit swaps them in.
type Sink interface {
	Begin(ctx context.Context, table string, header []string) (Staging, error)
}

// Staging is an in-progress rebuild of one table.
type Staging interface {
	WriteBatch(ctx context.Context, rows [][]string) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

const (
	DefaultBatchSize       = 500
	DefaultWritesPerSecond = 1
)

// Rebuilder writes tables to a Sink in bounded batches, throttled by a
// shared rate limiter.
type Rebuilder struct {
	sink      Sink
	batchSize int
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithBatchSize caps the number of rows per write.
func WithBatchSize(n int) RebuilderOption {
	return func(r *Rebuilder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRateLimit allows perSecond batch writes with the given burst.
// A non-positive perSecond disables throttling.
func WithRateLimit(perSecond float64, burst int) RebuilderOption {
	return func(r *Rebuilder) {
		if perSecond <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRebuildLogger sets the logger.
func WithRebuildLogger(l zerolog.Logger) RebuilderOption {
	return func(r *Rebuilder) { r.logger = l }
}

func NewRebuilder(sink Sink, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		sink:      sink,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Limit(DefaultWritesPerSecond), 1),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebuild replaces one table. On any failure the staging area is aborted
// and the previously committed table stays visible.
func (r *Rebuilder) Rebuild(ctx context.Context, t Table) (err error) {
	start := time.Now()

	stage, err := r.sink.Begin(ctx, t.Name, t.Header)
	if err != nil {
		return fmt.Errorf("report: begin %s: %w", t.Name, err)
	}
	defer func() {
		if err != nil {
			if abortErr := stage.Abort(context.WithoutCancel(ctx)); abortErr != nil {
				r.logger.Warn().Err(abortErr).Str("table", t.Name).Msg("abort staging failed")
			}
		}
	}()

	batches := 0
	for off := 0; off < len(t.Rows); off += r.batchSize {
		end := min(off+r.batchSize, len(t.Rows))
		if err = r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("report: throttle %s: %w", t.Name, err)
		}
		if err = stage.WriteBatch(ctx, t.Rows[off:end]); err != nil {
			return fmt.Errorf("report: write %s rows %d-%d: %w", t.Name, off, end, err)
		}
		batches++
	}

	if err = stage.Commit(ctx); err != nil {
		return fmt.Errorf("report: commit %s: %w", t.Name, err)
	}

	r.logger.Info().
		Str("table", t.Name).
		Int("rows", len(t.Rows)).
		Int("batches", batches).
		Dur("elapsed", time.Since(start)).
		Msg("report rebuilt")
	return nil
}

// RebuildAll rebuilds independent tables concurrently. There is no
// ordering between tables; the first error cancels the rest.
func (r *Rebuilder) RebuildAll(ctx context.Context, tables ...Table) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tables {
		g.Go(func() error { return r.Rebuild(gctx, t) })
	}
	return g.Wait()
}
