package job

import (
	"time"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/types"
)

// MaterialStatus tracks a material order from purchase to the job site.
type MaterialStatus string

const (
	MaterialPending   MaterialStatus = "pending"
	MaterialOrdered   MaterialStatus = "ordered"
	MaterialInTransit MaterialStatus = "in_transit"
	MaterialArrived   MaterialStatus = "arrived"
	MaterialCollected MaterialStatus = "collected"
)

// OnSite reports whether the material is physically available.
func (s MaterialStatus) OnSite() bool {
	return s == MaterialArrived || s == MaterialCollected
}

// WarrantyStatus is the lifecycle of a workmanship warranty.
type WarrantyStatus string

const (
	WarrantyActive  WarrantyStatus = "active"
	WarrantyExpired WarrantyStatus = "expired"
	WarrantyVoid    WarrantyStatus = "void"
)

// Job is a renovation job moving through the pipeline.
type Job struct {
	types.Entity
	ID             id.JobID             `json:"id"`
	CustomerName   string               `json:"customer_name,omitempty"`
	Address        string               `json:"address,omitempty"`
	Status         Status               `json:"status"`
	CrewIDs        []string             `json:"crew_ids"`
	Materials      []Material           `json:"materials"`
	Documents      Documents            `json:"documents"`
	Photos         Photos               `json:"photos"`
	FinalPayment   *Payment             `json:"final_payment,omitempty"`
	Commission     Commission           `json:"commission"`
	Costs          Costs                `json:"costs"`
	LeadID         id.LeadID            `json:"lead_id"`
	LinkedInvoices LinkedInvoices       `json:"linked_invoices"`
	Dates          map[Status]time.Time `json:"dates"`
	Warranty       *Warranty            `json:"warranty,omitempty"`
	Log            []AuditEntry         `json:"log"`
	Version        int64                `json:"version"`
}

type Material struct {
	Name            string         `json:"name"`
	Status          MaterialStatus `json:"status"`
	ExpectedArrival *time.Time     `json:"expected_arrival,omitempty"`
	ActualArrival   *time.Time     `json:"actual_arrival,omitempty"`
}

// Document is an uploaded file reference. A non-nil Document is present.
type Document struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
}

// Signature records who signed and when.
type Signature struct {
	Name     string    `json:"name"`
	SignedAt time.Time `json:"signed_at"`
}

type CompletionCertificate struct {
	Document
	Customer   *Signature `json:"customer,omitempty"`
	Contractor *Signature `json:"contractor,omitempty"`
}

type Documents struct {
	Contract       *Document              `json:"contract,omitempty"`
	DownPayment    *Document              `json:"down_payment,omitempty"`
	CompletionCert *CompletionCertificate `json:"completion_cert,omitempty"`
}

type Photos struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

type Payment struct {
	Amount     types.Money `json:"amount"`
	ReceivedAt *time.Time  `json:"received_at,omitempty"`
	Method     string      `json:"method,omitempty"`
}

// Commission holds the sales figures. Nil means the figure was never entered.
type Commission struct {
	ContractValue *types.Money `json:"contract_value,omitempty"`
	Amount        *types.Money `json:"amount,omitempty"`
}

type Costs struct {
	MaterialProjected types.Money `json:"material_projected"`
	MaterialActual    types.Money `json:"material_actual"`
	LaborProjected    types.Money `json:"labor_projected"`
	LaborActual       types.Money `json:"labor_actual"`
}

// LinkedInvoices references the settlement invoices generated for the job.
type LinkedInvoices struct {
	LeadFeeInvoiceID id.InvoiceID `json:"lead_fee_invoice_id"`
	LaborInvoiceID   id.InvoiceID `json:"labor_invoice_id"`
}

type Warranty struct {
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Status WarrantyStatus `json:"status"`
}

// EntryType classifies communication log entries.
type EntryType string

const (
	EntryStatusUpdate EntryType = "status_update"
	EntryNote         EntryType = "note"
	EntrySettlement   EntryType = "settlement"
)

// AuditEntry is an immutable communication log record.
type AuditEntry struct {
	ID        id.AuditID `json:"id"`
	Type      EntryType  `json:"type"`
	ActorID   string     `json:"actor_id"`
	ActorRole Role       `json:"actor_role"`
	From      Status     `json:"from,omitempty"`
	To        Status     `json:"to,omitempty"`
	Note      string     `json:"note,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Skipped   bool       `json:"skipped_validation,omitempty"`
	At        time.Time  `json:"at"`
}

// New returns a job in the lead stage with its lead date set.
func New(customer string, leadID id.LeadID) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity:       types.NewEntity(now),
		ID:           id.NewJobID(),
		CustomerName: customer,
		Status:       StatusLead,
		LeadID:       leadID,
		Dates:        map[Status]time.Time{StatusLead: now},
	}
}

// Presence predicates

func (j *Job) HasContract() bool { return j.Documents.Contract != nil }

func (j *Job) HasDownPaymentProof() bool { return j.Documents.DownPayment != nil }

// HasSignedCompletionCert reports whether the completion certificate
// carries both the customer and the contractor signature.
func (j *Job) HasSignedCompletionCert() bool {
	c := j.Documents.CompletionCert
	return c != nil && c.Customer != nil && c.Contractor != nil
}

func (j *Job) HasFinalPayment() bool { return j.FinalPayment != nil }

func (j *Job) HasAfterPhotos() bool { return len(j.Photos.After) > 0 }

func (j *Job) HasCrew() bool { return len(j.CrewIDs) > 0 }

func (j *Job) ContractValuePositive() bool {
	return j.Commission.ContractValue != nil && j.Commission.ContractValue.IsPositive()
}

// ContractValue returns the recorded contract value or a zero amount.
func (j *Job) ContractValue() types.Money {
	if j.Commission.ContractValue == nil {
		return types.Money{}
	}
	return *j.Commission.ContractValue
}

// CommissionAmount returns the recorded commission or a zero amount.
func (j *Job) CommissionAmount() types.Money {
	if j.Commission.Amount == nil {
		return types.Money{}
	}
	return *j.Commission.Amount
}

// Contractor returns the contractor of record, the first crew member.
func (j *Job) Contractor() string {
	if len(j.CrewIDs) == 0 {
		return ""
	}
	return j.CrewIDs[0]
}

// HasRequest reports whether a transition with the given request id was
// already applied.
func (j *Job) HasRequest(requestID string) bool {
	if requestID == "" {
		return false
	}
	for _, e := range j.Log {
		if e.RequestID == requestID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (j *Job) Clone() *Job {
	c := *j
	c.CrewIDs = append([]string(nil), j.CrewIDs...)
	c.Materials = cloneMaterials(j.Materials)
	c.Documents = j.Documents.clone()
	c.Photos.Before = append([]string(nil), j.Photos.Before...)
	c.Photos.After = append([]string(nil), j.Photos.After...)
	c.Log = append([]AuditEntry(nil), j.Log...)
	if j.Dates != nil {
		c.Dates = make(map[Status]time.Time, len(j.Dates))
		for k, v := range j.Dates {
			c.Dates[k] = v
		}
	}
	c.Warranty = clonePtr(j.Warranty)
	if j.FinalPayment != nil {
		c.FinalPayment = j.FinalPayment.clone()
	}
	c.Commission.ContractValue = clonePtr(j.Commission.ContractValue)
	c.Commission.Amount = clonePtr(j.Commission.Amount)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMaterials(ms []Material) []Material {
	if ms == nil {
		return nil
	}
	out := make([]Material, len(ms))
	for i, m := range ms {
		m.ExpectedArrival = clonePtr(m.ExpectedArrival)
		m.ActualArrival = clonePtr(m.ActualArrival)
		out[i] = m
	}
	return out
}

func (c *CompletionCertificate) clone() *CompletionCertificate {
	if c == nil {
		return nil
	}
	cc := *c
	cc.Customer = clonePtr(c.Customer)
	cc.Contractor = clonePtr(c.Contractor)
	return &cc
}

func (d Documents) clone() Documents {
	return Documents{
		Contract:       clonePtr(d.Contract),
		DownPayment:    clonePtr(d.DownPayment),
		CompletionCert: d.CompletionCert.clone(),
	}
}

func (p *Payment) clone() *Payment {
	c := *p
	c.ReceivedAt = clonePtr(p.ReceivedAt)
	return &c
}
