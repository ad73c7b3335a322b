package jobledger

import (
	"context"
	"fmt"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/report"
	"github.com/kdgroup/jobledger/types"
)

func reportErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrReportFailed, name, err)
}

// AgingReport buckets every sent invoice by days past due.
func (e *Engine) AgingReport(ctx context.Context) (report.AgingReport, error) {
	invoices, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusSent})
	if err != nil {
		return report.AgingReport{}, reportErr("aging", err)
	}
	rep := report.Aging(invoices, e.now())
	for i := range rep.Rows {
		rep.Rows[i].Amount = e.inCurrency(rep.Rows[i].Amount)
	}
	rep.Total.Amount = e.inCurrency(rep.Total.Amount)
	return rep, nil
}

// MonthlySummary groups paid revenue by month, newest first.
func (e *Engine) MonthlySummary(ctx context.Context) ([]report.MonthRow, error) {
	invoices, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusPaid})
	if err != nil {
		return nil, reportErr("monthly", err)
	}
	return report.Monthly(invoices), nil
}

// EntityPnL computes one entity's profit and loss.
func (e *Engine) EntityPnL(ctx context.Context, entity invoice.EntityCode, period report.Period) (report.PnL, error) {
	if !entity.IsInternal() {
		return report.PnL{}, ValidationError{Field: "entity", Message: fmt.Sprintf("%q is not an internal entity", entity)}
	}
	invoices, jobs, err := e.pnlInputs(ctx)
	if err != nil {
		return report.PnL{}, reportErr("pnl", err)
	}
	return e.normalizePnL(report.EntityPnL(entity, invoices, jobs, period)), nil
}

// CombinedPnL computes all internal entities plus consolidated figures.
func (e *Engine) CombinedPnL(ctx context.Context, period report.Period) (report.CombinedPnL, error) {
	invoices, jobs, err := e.pnlInputs(ctx)
	if err != nil {
		return report.CombinedPnL{}, reportErr("combined pnl", err)
	}
	c := report.Combined(invoices, jobs, period)
	for i := range c.Entities {
		c.Entities[i] = e.normalizePnL(c.Entities[i])
	}
	for _, m := range []*types.Money{
		&c.Revenue, &c.Expenses, &c.NetIncome,
		&c.IntercompanyRevenue, &c.IntercompanyExpenses,
		&c.ConsolidatedRevenue, &c.ConsolidatedExpenses, &c.ConsolidatedNetIncome,
	} {
		*m = e.inCurrency(*m)
	}
	return c, nil
}

// ExportReports rebuilds every report table in the configured sink.
// Tables are staged and swapped in, so readers never see a partial rebuild.
func (e *Engine) ExportReports(ctx context.Context) error {
	if e.rebuilder == nil {
		return fmt.Errorf("%w: no report sink configured", ErrInvalidInput)
	}

	all, err := e.store.ListInvoices(ctx, invoice.ListOpts{})
	if err != nil {
		return reportErr("export", err)
	}
	_, jobs, err := e.pnlInputs(ctx)
	if err != nil {
		return reportErr("export", err)
	}

	now := e.now()
	err = e.rebuilder.RebuildAll(ctx,
		report.AgingTable(report.Aging(all, now)),
		report.MonthlyTable(report.Monthly(all)),
		report.PnLTable(report.Combined(all, jobs, report.Period{})),
		report.InvoiceTable(all, now),
	)
	if err != nil {
		e.logger.Error().Err(err).Msg("report export failed")
		return reportErr("export", err)
	}
	return nil
}

func (e *Engine) pnlInputs(ctx context.Context) ([]*invoice.Invoice, []*job.Job, error) {
	invoices, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusPaid})
	if err != nil {
		return nil, nil, err
	}
	var jobs []*job.Job
	for _, s := range []job.Status{job.StatusComplete, job.StatusPaidInFull} {
		batch, err := e.store.ListJobs(ctx, job.ListOpts{Status: s})
		if err != nil {
			return nil, nil, err
		}
		for _, j := range batch {
			j.Costs.MaterialActual = e.inCurrency(j.Costs.MaterialActual)
		}
		jobs = append(jobs, batch...)
	}
	return invoices, jobs, nil
}

func (e *Engine) normalizePnL(p report.PnL) report.PnL {
	p.Revenue = e.inCurrency(p.Revenue)
	p.Expenses = e.inCurrency(p.Expenses)
	p.MaterialCosts = e.inCurrency(p.MaterialCosts)
	p.NetIncome = e.inCurrency(p.NetIncome)
	return p
}

// inCurrency labels amounts that carry no currency with the ledger currency.
func (e *Engine) inCurrency(m types.Money) types.Money {
	if m.Currency == "" {
		m.Currency = e.currency
	}
	return m
}
