package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
)

// Each document keeps the queried fields at the top level and the full
// record under body, converted from its JSON form through relaxed
// Extended JSON so JSON field names and value formats are preserved.

func toBody(v any) (bson.D, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jobledger/mongo: encode: %w", err)
	}
	var body bson.D
	if err := bson.UnmarshalExtJSON(b, false, &body); err != nil {
		return nil, fmt.Errorf("jobledger/mongo: encode: %w", err)
	}
	return body, nil
}

func fromBody[T any](body bson.D) (*T, error) {
	b, err := bson.MarshalExtJSON(body, false, false)
	if err != nil {
		return nil, fmt.Errorf("jobledger/mongo: decode: %w", err)
	}
	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("jobledger/mongo: decode: %w", err)
	}
	return v, nil
}

// ==================== Job models ====================

type jobModel struct {
	ID        string    `bson:"_id"`
	Status    string    `bson:"status"`
	LeadID    string    `bson:"lead_id,omitempty"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Body      bson.D    `bson:"body"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	body, err := toBody(j)
	if err != nil {
		return nil, err
	}
	return &jobModel{
		ID:        j.ID.String(),
		Status:    string(j.Status),
		LeadID:    j.LeadID.String(),
		Version:   j.Version,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Body:      body,
	}, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	j, err := fromBody[job.Job](m.Body)
	if err != nil {
		return nil, err
	}
	j.Version = m.Version
	return j, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID            string    `bson:"_id"`
	InvoiceNumber string    `bson:"invoice_number"`
	FromEntity    string    `bson:"from_entity"`
	ToEntity      string    `bson:"to_entity"`
	Status        string    `bson:"status"`
	JobID         string    `bson:"job_id,omitempty"`
	SettlementKey string    `bson:"settlement_key,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
	Body          bson.D    `bson:"body"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	body, err := toBody(inv)
	if err != nil {
		return nil, err
	}
	return &invoiceModel{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		FromEntity:    string(inv.From.Entity),
		ToEntity:      string(inv.To.Entity),
		Status:        string(inv.Status),
		JobID:         inv.JobID.String(),
		SettlementKey: inv.SettlementKey,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Body:          body,
	}, nil
}

// ==================== Payout models ====================

type payoutModel struct {
	ID            string    `bson:"_id"`
	Type          string    `bson:"type"`
	Status        string    `bson:"status"`
	JobID         string    `bson:"job_id,omitempty"`
	SettlementKey string    `bson:"settlement_key,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
	Body          bson.D    `bson:"body"`
}

func toPayoutModel(p *payout.Payout) (*payoutModel, error) {
	body, err := toBody(p)
	if err != nil {
		return nil, err
	}
	return &payoutModel{
		ID:            p.ID.String(),
		Type:          string(p.Type),
		Status:        string(p.Status),
		JobID:         p.JobID.String(),
		SettlementKey: p.SettlementKey,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Body:          body,
	}, nil
}

// ==================== Lead models ====================

type leadModel struct {
	ID        string    `bson:"_id"`
	Source    string    `bson:"source"`
	CreatedAt time.Time `bson:"created_at"`
	Body      bson.D    `bson:"body"`
}

func toLeadModel(l *lead.Lead) (*leadModel, error) {
	body, err := toBody(l)
	if err != nil {
		return nil, err
	}
	return &leadModel{ID: l.ID.String(), Source: l.Source, CreatedAt: l.CreatedAt, Body: body}, nil
}

type sequenceModel struct {
	ID        string `bson:"_id"`
	Prefix    string `bson:"prefix"`
	Year      int    `bson:"year"`
	LastValue int64  `bson:"last_value"`
}
