// Package mongo implements store.Store on MongoDB. Job updates use an
// optimistic version check instead of locks.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/store"
)

// Collection name constants.
const (
	colJobs      = "jobledger_jobs"
	colInvoices  = "jobledger_invoices"
	colSequences = "jobledger_invoice_sequences"
	colPayouts   = "jobledger_payouts"
	colLeads     = "jobledger_leads"
)

// DefaultMaxRetries bounds the compare-and-swap attempts of UpdateJob.
const DefaultMaxRetries = 10

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	db         *mongo.Database
	logger     zerolog.Logger
	maxRetries int
}

// New wraps an existing database handle.
func New(db *mongo.Database, logger zerolog.Logger) *Store {
	return &Store{
		db:         db,
		logger:     logger.With().Str("component", "mongo").Logger(),
		maxRetries: DefaultMaxRetries,
	}
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string, logger zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("jobledger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("jobledger/mongo: ping: %w", err)
	}
	return New(client.Database(database), logger), nil
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: jobledger/mongo: %s indexes: %w", jobledger.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

// ==================== Job Store ====================

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colJobs).InsertOne(ctx, m); err != nil {
		return wrapInsert("create job", err)
	}
	return nil
}

func (s *Store) findJob(ctx context.Context, jobID id.JobID) (*jobModel, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobledger.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobledger/mongo: get job: %w", err)
	}
	return &m, nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m, err := s.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return fromJobModel(m)
}

// UpdateJob replaces the job only if its version is unchanged since it was
// read, retrying with a fresh copy when another writer got there first.
// fn may therefore run more than once.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, fn job.MutateFunc) (*job.Job, error) {
	col := s.db.Collection(colJobs)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.findJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		j, err := fromJobModel(current)
		if err != nil {
			return nil, err
		}
		if err := fn(j); err != nil {
			return nil, err
		}
		j.Version = current.Version + 1

		next, err := toJobModel(j)
		if err != nil {
			return nil, err
		}
		res, err := col.ReplaceOne(ctx, bson.M{"_id": current.ID, "version": current.Version}, next)
		if err != nil {
			return nil, fmt.Errorf("jobledger/mongo: update job: %w", err)
		}
		if res.MatchedCount == 1 {
			return j, nil
		}

		s.logger.Debug().Str("job_id", jobID.String()).Int("attempt", attempt+1).Msg("job version moved, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return nil, fmt.Errorf("%w: job %s", jobledger.ErrConflict, jobID)
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []jobModel
	if err := s.find(ctx, colJobs, filter, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("jobledger/mongo: list jobs: %w", err)
	}

	result := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colInvoices).InsertOne(ctx, m); err != nil {
		return wrapInsert("create invoice", err)
	}
	return nil
}

func (s *Store) findInvoice(ctx context.Context, filter bson.M) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := s.db.Collection(colInvoices).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, jobledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("jobledger/mongo: get invoice: %w", err)
	}
	return fromBody[invoice.Invoice](m.Body)
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"_id": invID.String()})
}

func (s *Store) GetInvoiceBySettlementKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"settlement_key": key})
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Entity != "" {
		filter["$or"] = bson.A{
			bson.M{"from_entity": string(opts.Entity)},
			bson.M{"to_entity": string(opts.Entity)},
		}
	}
	if !opts.JobID.IsNil() {
		filter["job_id"] = opts.JobID.String()
	}
	if window := timeWindow(opts.Start, opts.End); len(window) > 0 {
		filter["created_at"] = window
	}

	var models []invoiceModel
	if err := s.find(ctx, colInvoices, filter, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("jobledger/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromBody[invoice.Invoice](models[i].Body)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	body, err := toBody(inv)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(colInvoices).UpdateOne(ctx,
		bson.M{"_id": inv.ID.String()},
		bson.M{"$set": bson.M{"status": string(inv.Status), "updated_at": inv.UpdatedAt, "body": body}},
	)
	if err != nil {
		return fmt.Errorf("jobledger/mongo: update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return jobledger.ErrInvoiceNotFound
	}
	return nil
}

// NextSequence increments the (prefix, year) counter with an upserting
// $inc. Two first-time upserts can race on the _id; the loser retries and
// increments the document the winner created.
func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	col := s.db.Collection(colSequences)
	seqID := fmt.Sprintf("%s:%d", prefix, year)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var m sequenceModel
		err = col.FindOneAndUpdate(ctx,
			bson.M{"_id": seqID},
			bson.M{
				"$inc":         bson.M{"last_value": 1},
				"$setOnInsert": bson.M{"prefix": prefix, "year": year},
			},
			opts,
		).Decode(&m)
		if err == nil {
			return m.LastValue, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return 0, fmt.Errorf("jobledger/mongo: next sequence: %w", err)
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	m, err := toPayoutModel(p)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colPayouts).InsertOne(ctx, m); err != nil {
		return wrapInsert("create payout", err)
	}
	return nil
}

func (s *Store) findPayout(ctx context.Context, filter bson.M) (*payout.Payout, error) {
	var m payoutModel
	if err := s.db.Collection(colPayouts).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, jobledger.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("jobledger/mongo: get payout: %w", err)
	}
	return fromBody[payout.Payout](m.Body)
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	return s.findPayout(ctx, bson.M{"_id": payoutID.String()})
}

func (s *Store) GetPayoutBySettlementKey(ctx context.Context, key string) (*payout.Payout, error) {
	return s.findPayout(ctx, bson.M{"settlement_key": key})
}

func (s *Store) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	filter := bson.M{}
	if !opts.JobID.IsNil() {
		filter["job_id"] = opts.JobID.String()
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []payoutModel
	if err := s.find(ctx, colPayouts, filter, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("jobledger/mongo: list payouts: %w", err)
	}

	result := make([]*payout.Payout, 0, len(models))
	for i := range models {
		p, err := fromBody[payout.Payout](models[i].Body)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout) error {
	body, err := toBody(p)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(colPayouts).UpdateOne(ctx,
		bson.M{"_id": p.ID.String()},
		bson.M{"$set": bson.M{"status": string(p.Status), "updated_at": p.UpdatedAt, "body": body}},
	)
	if err != nil {
		return fmt.Errorf("jobledger/mongo: update payout: %w", err)
	}
	if res.MatchedCount == 0 {
		return jobledger.ErrPayoutNotFound
	}
	return nil
}

// ==================== Lead Store ====================

func (s *Store) CreateLead(ctx context.Context, l *lead.Lead) error {
	m, err := toLeadModel(l)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colLeads).InsertOne(ctx, m); err != nil {
		return wrapInsert("create lead", err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, leadID id.LeadID) (*lead.Lead, error) {
	var m leadModel
	err := s.db.Collection(colLeads).FindOne(ctx, bson.M{"_id": leadID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobledger.ErrLeadNotFound
		}
		return nil, fmt.Errorf("jobledger/mongo: get lead: %w", err)
	}
	return fromBody[lead.Lead](m.Body)
}

// ==================== Helpers ====================

func (s *Store) find(ctx context.Context, col string, filter bson.M, limit, offset int, out any) error {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cursor, err := s.db.Collection(col).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func timeWindow(start, end time.Time) bson.M {
	w := bson.M{}
	if !start.IsZero() {
		w["$gte"] = start
	}
	if !end.IsZero() {
		w["$lt"] = end
	}
	return w
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * time.Millisecond
	return d + rand.N(d)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func wrapInsert(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("jobledger/mongo: %s: %w", op, jobledger.ErrAlreadyExists)
	}
	return fmt.Errorf("jobledger/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colJobs: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "lead_id", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "invoice_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "settlement_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "job_id", Value: 1}}},
		},
		colPayouts: {
			{
				Keys:    bson.D{{Key: "settlement_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "job_id", Value: 1}}},
		},
	}
}
