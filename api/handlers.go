package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/payout"
	"github.com/kdgroup/jobledger/report"
)

func badRequest(field, msg string) error {
	return jobledger.ValidationError{Field: field, Message: msg}
}

func pathID(r *http.Request, param string, parse func(string) (id.ID, error)) (id.ID, error) {
	v, err := parse(chi.URLParam(r, param))
	if err != nil {
		return id.Nil, badRequest(param, err.Error())
	}
	return v, nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, badRequest("limit", "must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, badRequest("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// ──────────────────────────────────────────────────
// Leads and jobs
// ──────────────────────────────────────────────────

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var l lead.Lead
	if err := decode(r, &l); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	if err := s.engine.CreateLead(r.Context(), &l); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var in jobledger.JobInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	j, err := s.engine.CreateJob(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := job.ListOpts{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		if opts.Status, err = job.ParseStatus(v); err != nil {
			s.fail(w, r, badRequest("status", err.Error()))
			return
		}
	}
	jobs, err := s.engine.ListJobs(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	j, err := s.engine.GetJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) patchJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p job.Patch
	if err := decode(r, &p); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	a := actorFrom(r.Context())
	j, err := s.engine.UpdateJobDetails(r.Context(), jobID, p, a.ID, a.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type requirementsResponse struct {
	From         job.Status        `json:"from"`
	To           job.Status        `json:"to"`
	Satisfied    bool              `json:"satisfied"`
	Requirements []job.Requirement `json:"requirements"`
}

func (s *Server) checkRequirements(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := job.ParseStatus(r.URL.Query().Get("to"))
	if err != nil {
		s.fail(w, r, badRequest("to", err.Error()))
		return
	}
	reqs, err := s.engine.CheckRequirements(r.Context(), jobID, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	j, err := s.engine.GetJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requirementsResponse{
		From:         j.Status,
		To:           to,
		Satisfied:    job.Satisfied(reqs),
		Requirements: reqs,
	})
}

func (s *Server) allowedTransitions(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	j, err := s.engine.GetJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	targets := s.engine.AllowedTransitions(j.Status, actorFrom(r.Context()).Role)
	if targets == nil {
		targets = []job.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": j.Status, "targets": targets})
}

type transitionBody struct {
	From           job.Status `json:"from"`
	To             job.Status `json:"to"`
	Note           string     `json:"note,omitempty"`
	SkipValidation bool       `json:"skip_validation,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
}

type transitionResponse struct {
	*jobledger.TransitionResult
	SettlementErrors []string `json:"settlement_errors,omitempty"`
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body transitionBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	if body.RequestID == "" {
		body.RequestID = r.Header.Get("Idempotency-Key")
	}
	a := actorFrom(r.Context())
	res, err := s.engine.Transition(r.Context(), jobledger.TransitionRequest{
		JobID:          jobID,
		From:           body.From,
		To:             body.To,
		ActorID:        a.ID,
		ActorRole:      a.Role,
		Note:           body.Note,
		SkipValidation: body.SkipValidation,
		RequestID:      body.RequestID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := transitionResponse{TransitionResult: res}
	for _, e := range res.SettlementErrors {
		out.SettlementErrors = append(out.SettlementErrors, e.Error())
	}
	writeJSON(w, http.StatusOK, out)
}

type settlementResponse struct {
	*jobledger.SettlementResult
	Failures []string `json:"failures,omitempty"`
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID", id.ParseJobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.Settle(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := settlementResponse{SettlementResult: res}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	status := http.StatusOK
	if len(out.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, out)
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

type invoiceView struct {
	*invoice.Invoice
	DisplayStatus string `json:"display_status"`
}

func (s *Server) view(inv *invoice.Invoice) invoiceView {
	return invoiceView{Invoice: inv, DisplayStatus: inv.DisplayStatus(s.now())}
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in jobledger.InvoiceInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	if in.SettlementKey != "" {
		s.fail(w, r, badRequest("settlement_key", "reserved for settlement"))
		return
	}
	inv, err := s.engine.CreateInvoice(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(inv))
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	opts := invoice.ListOpts{
		Status: invoice.Status(q.Get("status")),
		Entity: invoice.EntityCode(q.Get("entity")),
		Limit:  limit,
		Offset: offset,
	}
	if opts.Status != "" && !opts.Status.IsValid() {
		s.fail(w, r, badRequest("status", fmt.Sprintf("unknown invoice status %q", opts.Status)))
		return
	}
	if v := q.Get("job_id"); v != "" {
		if opts.JobID, err = id.ParseJobID(v); err != nil {
			s.fail(w, r, badRequest("job_id", err.Error()))
			return
		}
	}
	invoices, err := s.engine.ListInvoices(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, s.view(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	invID, err := pathID(r, "invoiceID", id.ParseInvoiceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	inv, err := s.engine.GetInvoice(r.Context(), invID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(inv))
}

func (s *Server) sendInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.engine.MarkInvoiceSent)
}

func (s *Server) payInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.engine.MarkInvoicePaid)
}

func (s *Server) revertInvoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status invoice.Status `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	s.invoiceAction(w, r, func(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
		return s.engine.RevertInvoice(ctx, invID, body.Status)
	})
}

func (s *Server) invoiceAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, id.InvoiceID) (*invoice.Invoice, error)) {
	invID, err := pathID(r, "invoiceID", id.ParseInvoiceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	inv, err := fn(r.Context(), invID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(inv))
}

// ──────────────────────────────────────────────────
// Payouts
// ──────────────────────────────────────────────────

func (s *Server) listPayouts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	opts := payout.ListOpts{
		Type:   payout.Type(q.Get("type")),
		Status: payout.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("job_id"); v != "" {
		if opts.JobID, err = id.ParseJobID(v); err != nil {
			s.fail(w, r, badRequest("job_id", err.Error()))
			return
		}
	}
	payouts, err := s.engine.ListPayouts(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if payouts == nil {
		payouts = []*payout.Payout{}
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (s *Server) advancePayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := pathID(r, "payoutID", id.ParsePayoutID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Status payout.Status `json:"status"`
		Reason string        `json:"reason,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, badRequest("body", err.Error()))
		return
	}
	p, err := s.engine.AdvancePayout(r.Context(), payoutID, body.Status, body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ──────────────────────────────────────────────────
// Reports
// ──────────────────────────────────────────────────

func (s *Server) agingReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.AgingReport(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) monthlyReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.MonthlySummary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []report.MonthRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// pnlReport serves one entity's P&L when ?entity= is set, the combined
// view otherwise. from and to are dates (2006-01-02); to is exclusive.
func (s *Server) pnlReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var period report.Period
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"from", &period.From}, {"to", &period.To}} {
		if v := q.Get(f.name); v != "" {
			t, err := time.Parse(time.DateOnly, v)
			if err != nil {
				s.fail(w, r, badRequest(f.name, "must be a date like 2006-01-02"))
				return
			}
			*f.dst = t
		}
	}

	if entity := q.Get("entity"); entity != "" {
		p, err := s.engine.EntityPnL(r.Context(), invoice.EntityCode(entity), period)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	c, err := s.engine.CombinedPnL(r.Context(), period)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) exportReports(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ExportReports(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "exported"})
}
