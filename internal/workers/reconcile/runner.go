// Package reconcile re-runs settlement for paid jobs whose settlement
// records are missing, e.g. after a crash between the status commit and
// settlement or after a failed half. Halves that settlement skips on
// purpose are left alone.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/job"
)

const pageSize = 100

// Engine is the subset of *jobledger.Engine the runner needs.
type Engine interface {
	ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error)
	SettlementPending(ctx context.Context, j *job.Job) (bool, error)
	Settle(ctx context.Context, jobID id.JobID) (*jobledger.SettlementResult, error)
}

// Summary counts the outcome of one pass.
type Summary struct {
	Scanned  int
	Settled  int
	Failed   int
	Duration time.Duration
}

// Runner scans paid jobs and settles the unsettled ones with a fixed pool
// of workers.
type Runner struct {
	engine   Engine
	workers  int
	interval time.Duration
	logger   zerolog.Logger
}

func New(engine Engine, workers int, interval time.Duration, logger zerolog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		engine:   engine,
		workers:  workers,
		interval: interval,
		logger:   logger.With().Str("component", "reconcile").Logger(),
	}
}

// Run reconciles once immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.logger.Info().Int("workers", r.workers).Dur("interval", r.interval).Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reconcile pass failed")
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass over every paid job.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	jobsCh := make(chan id.JobID, r.workers)

	var (
		mu  sync.Mutex
		sum Summary
		wg  sync.WaitGroup
	)
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for jobID := range jobsCh {
				res, err := r.engine.Settle(ctx, jobID)
				failed := err != nil || (res != nil && len(res.Failures) > 0)
				if failed {
					ev := r.logger.Warn().Int("worker", idx).Str("job_id", jobID.String())
					if err != nil {
						ev = ev.Err(err)
					} else {
						ev = ev.Int("failures", len(res.Failures)).Err(res.Failures[0])
					}
					ev.Msg("settlement still incomplete")
				}
				mu.Lock()
				if failed {
					sum.Failed++
				} else {
					sum.Settled++
				}
				mu.Unlock()
			}
		}(i)
	}

	err := r.dispatch(ctx, jobsCh, &sum, &mu)
	close(jobsCh)
	wg.Wait()

	sum.Duration = time.Since(start)
	if sum.Settled+sum.Failed > 0 {
		r.logger.Info().
			Int("scanned", sum.Scanned).
			Int("settled", sum.Settled).
			Int("failed", sum.Failed).
			Dur("elapsed", sum.Duration).
			Msg("reconcile pass finished")
	}
	return sum, err
}

func (r *Runner) dispatch(ctx context.Context, jobsCh chan<- id.JobID, sum *Summary, mu *sync.Mutex) error {
	for offset := 0; ; offset += pageSize {
		page, err := r.engine.ListJobs(ctx, job.ListOpts{
			Status: job.StatusPaidInFull,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return err
		}
		for _, j := range page {
			mu.Lock()
			sum.Scanned++
			mu.Unlock()
			pending, err := r.engine.SettlementPending(ctx, j)
			if err != nil {
				r.logger.Warn().Err(err).Str("job_id", j.ID.String()).Msg("cannot check settlement")
				continue
			}
			if !pending {
				continue
			}
			select {
			case jobsCh <- j.ID:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}
