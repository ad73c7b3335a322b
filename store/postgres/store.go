// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger.With().Str("component", "postgres").Logger()}
}

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: parse url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("jobledger/postgres: ping: %w", err)
	}
	return New(pool, logger), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Job Store ====================

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	body, err := encode(j)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobledger_jobs (id, status, lead_id, version, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID.String(), string(j.Status), nullable(j.LeadID), j.Version, body, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return wrapInsert("create job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var (
		body    []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT body, version FROM jobledger_jobs WHERE id = $1`, jobID.String()).
		Scan(&body, &version)
	if err != nil {
		if isNoRows(err) {
			return nil, jobledger.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobledger/postgres: get job: %w", err)
	}
	j, err := decode[job.Job](body)
	if err != nil {
		return nil, err
	}
	j.Version = version
	return j, nil
}

// UpdateJob locks the row for the duration of fn.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, fn job.MutateFunc) (_ *job.Job, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		body    []byte
		version int64
	)
	err = tx.QueryRow(ctx, `SELECT body, version FROM jobledger_jobs WHERE id = $1 FOR UPDATE`, jobID.String()).
		Scan(&body, &version)
	if err != nil {
		if isNoRows(err) {
			return nil, jobledger.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobledger/postgres: lock job: %w", err)
	}

	j, err := decode[job.Job](body)
	if err != nil {
		return nil, err
	}
	j.Version = version
	if err = fn(j); err != nil {
		return nil, err
	}
	j.Version = version + 1

	if body, err = encode(j); err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE jobledger_jobs SET status = $2, lead_id = $3, version = $4, body = $5, updated_at = $6
		WHERE id = $1`,
		j.ID.String(), string(j.Status), nullable(j.LeadID), j.Version, body, j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("jobledger/postgres: update job: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("jobledger/postgres: commit: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var w where
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	q := `SELECT body FROM jobledger_jobs` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: list jobs: %w", err)
	}
	return collect[job.Job](rows)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	body, err := encode(inv)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobledger_invoices
			(id, invoice_number, from_entity, to_entity, status, job_id, settlement_key, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID.String(), inv.InvoiceNumber, string(inv.From.Entity), string(inv.To.Entity), string(inv.Status),
		nullable(inv.JobID), nullable(inv.SettlementKey), body, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return wrapInsert("create invoice", err)
	}
	return nil
}

func (s *Store) getInvoice(ctx context.Context, column string, value any) (*invoice.Invoice, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM jobledger_invoices WHERE `+column+` = $1`, value).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return nil, jobledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("jobledger/postgres: get invoice: %w", err)
	}
	return decode[invoice.Invoice](body)
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.getInvoice(ctx, "id", invID.String())
}

func (s *Store) GetInvoiceBySettlementKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	return s.getInvoice(ctx, "settlement_key", key)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var w where
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	if opts.Entity != "" {
		w.add("(from_entity = $%[1]d OR to_entity = $%[1]d)", string(opts.Entity))
	}
	if !opts.JobID.IsNil() {
		w.add("job_id = $%d", opts.JobID.String())
	}
	if !opts.Start.IsZero() {
		w.add("created_at >= $%d", opts.Start)
	}
	if !opts.End.IsZero() {
		w.add("created_at < $%d", opts.End)
	}
	q := `SELECT body FROM jobledger_invoices` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: list invoices: %w", err)
	}
	return collect[invoice.Invoice](rows)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	body, err := encode(inv)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobledger_invoices SET status = $2, body = $3, updated_at = $4 WHERE id = $1`,
		inv.ID.String(), string(inv.Status), body, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobledger/postgres: update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobledger.ErrInvoiceNotFound
	}
	return nil
}

// NextSequence increments the (prefix, year) counter in a single upsert.
func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobledger_invoice_sequences (prefix, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE
		SET last_value = jobledger_invoice_sequences.last_value + 1
		RETURNING last_value`, prefix, year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("jobledger/postgres: next sequence: %w", err)
	}
	return next, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	body, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobledger_payouts (id, type, status, job_id, settlement_key, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID.String(), string(p.Type), string(p.Status), nullable(p.JobID), nullable(p.SettlementKey),
		body, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapInsert("create payout", err)
	}
	return nil
}

func (s *Store) getPayout(ctx context.Context, column string, value any) (*payout.Payout, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM jobledger_payouts WHERE `+column+` = $1`, value).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return nil, jobledger.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("jobledger/postgres: get payout: %w", err)
	}
	return decode[payout.Payout](body)
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	return s.getPayout(ctx, "id", payoutID.String())
}

func (s *Store) GetPayoutBySettlementKey(ctx context.Context, key string) (*payout.Payout, error) {
	return s.getPayout(ctx, "settlement_key", key)
}

func (s *Store) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	var w where
	if !opts.JobID.IsNil() {
		w.add("job_id = $%d", opts.JobID.String())
	}
	if opts.Type != "" {
		w.add("type = $%d", string(opts.Type))
	}
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	q := `SELECT body FROM jobledger_payouts` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: list payouts: %w", err)
	}
	return collect[payout.Payout](rows)
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout) error {
	body, err := encode(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobledger_payouts SET status = $2, body = $3, updated_at = $4 WHERE id = $1`,
		p.ID.String(), string(p.Status), body, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobledger/postgres: update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobledger.ErrPayoutNotFound
	}
	return nil
}

// ==================== Lead Store ====================

func (s *Store) CreateLead(ctx context.Context, l *lead.Lead) error {
	body, err := encode(l)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobledger_leads (id, source, body, created_at) VALUES ($1, $2, $3, $4)`,
		l.ID.String(), l.Source, body, l.CreatedAt)
	if err != nil {
		return wrapInsert("create lead", err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, leadID id.LeadID) (*lead.Lead, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM jobledger_leads WHERE id = $1`, leadID.String()).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return nil, jobledger.ErrLeadNotFound
		}
		return nil, fmt.Errorf("jobledger/postgres: get lead: %w", err)
	}
	return decode[lead.Lead](body)
}
