// Package sqlite implements store.Store on SQLite using the pure-Go
// modernc.org/sqlite driver. All access goes through one connection, so
// transactions are serialized.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens the database at path. Use ":memory:" for a throwaway store.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return &Store{db: db, logger: logger.With().Str("component", "sqlite").Logger()}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Job Store ====================

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	body, err := encode(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobledger_jobs (id, status, lead_id, version, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), string(j.Status), nullable(j.LeadID), j.Version, body, utc(j.CreatedAt), utc(j.UpdatedAt))
	if err != nil {
		return wrapInsert("create job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var (
		body    string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT body, version FROM jobledger_jobs WHERE id = ?`, jobID.String()).
		Scan(&body, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobledger.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobledger/sqlite: get job: %w", err)
	}
	j, err := decode[job.Job](body)
	if err != nil {
		return nil, err
	}
	j.Version = version
	return j, nil
}

// UpdateJob runs fn inside an immediate transaction.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, fn job.MutateFunc) (_ *job.Job, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		body    string
		version int64
	)
	err = tx.QueryRowContext(ctx, `SELECT body, version FROM jobledger_jobs WHERE id = ?`, jobID.String()).
		Scan(&body, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobledger.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobledger/sqlite: read job: %w", err)
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

	updated, err := encode(j)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE jobledger_jobs SET status = ?, lead_id = ?, version = ?, body = ?, updated_at = ?
		WHERE id = ?`,
		string(j.Status), nullable(j.LeadID), j.Version, updated, utc(j.UpdatedAt), j.ID.String()); err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: update job: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: commit: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var w where
	if opts.Status != "" {
		w.add("status = ?", string(opts.Status))
	}
	q := `SELECT body FROM jobledger_jobs` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: list jobs: %w", err)
	}
	return collect[job.Job](rows)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	body, err := encode(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobledger_invoices
			(id, invoice_number, from_entity, to_entity, status, job_id, settlement_key, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.InvoiceNumber, string(inv.From.Entity), string(inv.To.Entity), string(inv.Status),
		nullable(inv.JobID), nullable(inv.SettlementKey), body, utc(inv.CreatedAt), utc(inv.UpdatedAt))
	if err != nil {
		return wrapInsert("create invoice", err)
	}
	return nil
}

func (s *Store) getInvoice(ctx context.Context, column string, value any) (*invoice.Invoice, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM jobledger_invoices WHERE `+column+` = ?`, value).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("jobledger/sqlite: get invoice: %w", err)
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
		w.add("status = ?", string(opts.Status))
	}
	if opts.Entity != "" {
		w.add("(from_entity = ? OR to_entity = ?)", string(opts.Entity), string(opts.Entity))
	}
	if !opts.JobID.IsNil() {
		w.add("job_id = ?", opts.JobID.String())
	}
	if !opts.Start.IsZero() {
		w.add("created_at >= ?", utc(opts.Start))
	}
	if !opts.End.IsZero() {
		w.add("created_at < ?", utc(opts.End))
	}
	q := `SELECT body FROM jobledger_invoices` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: list invoices: %w", err)
	}
	return collect[invoice.Invoice](rows)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	body, err := encode(inv)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobledger_invoices SET status = ?, body = ?, updated_at = ? WHERE id = ?`,
		string(inv.Status), body, utc(inv.UpdatedAt), inv.ID.String())
	if err != nil {
		return fmt.Errorf("jobledger/sqlite: update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobledger.ErrInvoiceNotFound
	}
	return nil
}

// NextSequence increments the (prefix, year) counter in a single upsert.
func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jobledger_invoice_sequences (prefix, year, last_value) VALUES (?, ?, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`, prefix, year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("jobledger/sqlite: next sequence: %w", err)
	}
	return next, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	body, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobledger_payouts (id, type, status, job_id, settlement_key, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), string(p.Type), string(p.Status), nullable(p.JobID), nullable(p.SettlementKey),
		body, utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		return wrapInsert("create payout", err)
	}
	return nil
}

func (s *Store) getPayout(ctx context.Context, column string, value any) (*payout.Payout, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM jobledger_payouts WHERE `+column+` = ?`, value).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobledger.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("jobledger/sqlite: get payout: %w", err)
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
		w.add("job_id = ?", opts.JobID.String())
	}
	if opts.Type != "" {
		w.add("type = ?", string(opts.Type))
	}
	if opts.Status != "" {
		w.add("status = ?", string(opts.Status))
	}
	q := `SELECT body FROM jobledger_payouts` + w.sql() + ` ORDER BY created_at, id` + w.page(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: list payouts: %w", err)
	}
	return collect[payout.Payout](rows)
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout) error {
	body, err := encode(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobledger_payouts SET status = ?, body = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), body, utc(p.UpdatedAt), p.ID.String())
	if err != nil {
		return fmt.Errorf("jobledger/sqlite: update payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobledger_leads (id, source, body, created_at) VALUES (?, ?, ?, ?)`,
		l.ID.String(), l.Source, body, utc(l.CreatedAt))
	if err != nil {
		return wrapInsert("create lead", err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, leadID id.LeadID) (*lead.Lead, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM jobledger_leads WHERE id = ?`, leadID.String()).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobledger.ErrLeadNotFound
		}
		return nil, fmt.Errorf("jobledger/sqlite: get lead: %w", err)
	}
	return decode[lead.Lead](body)
}

// ==================== Helpers ====================

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("jobledger/sqlite: encode: %w", err)
	}
	return string(b), nil
}

func decode[T any](body string) (*T, error) {
	v := new(T)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return nil, fmt.Errorf("jobledger/sqlite: decode: %w", err)
	}
	return v, nil
}

func collect[T any](rows *sql.Rows) ([]*T, error) {
	defer rows.Close()

	result := make([]*T, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v, err := decode[T](body)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// Timestamps are stored in UTC so text comparison orders them.
func utc(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func nullable(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
	case id.ID:
		if t.IsNil() {
			return nil
		}
		return t.String()
	}
	return v
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func wrapInsert(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("jobledger/sqlite: %s: %w", op, jobledger.ErrAlreadyExists)
	}
	return fmt.Errorf("jobledger/sqlite: %s: %w", op, err)
}

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		w.args = append(w.args, limit, offset)
		return " LIMIT ? OFFSET ?"
	case limit > 0:
		w.args = append(w.args, limit)
		return " LIMIT ?"
	case offset > 0:
		w.args = append(w.args, offset)
		return " LIMIT -1 OFFSET ?"
	}
	return ""
}
