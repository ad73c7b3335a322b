package report

import (
	"time"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/types"
)

// Period limits a P&L to paid dates in [From, To). Zero bounds are open.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls in the period.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

type PnL struct {
	Entity        invoice.EntityCode `json:"entity"`
	Revenue       types.Money        `json:"revenue"`
	Expenses      types.Money        `json:"expenses"`
	MaterialCosts types.Money        `json:"material_costs"`
	NetIncome     types.Money        `json:"net_income"`
}

type CombinedPnL struct {
	Entities              []PnL       `json:"entities"`
	Revenue               types.Money `json:"revenue"`
	Expenses              types.Money `json:"expenses"`
	NetIncome             types.Money `json:"net_income"`
	IntercompanyRevenue   types.Money `json:"intercompany_revenue"`
	IntercompanyExpenses  types.Money `json:"intercompany_expenses"`
	ConsolidatedRevenue   types.Money `json:"consolidated_revenue"`
	ConsolidatedExpenses  types.Money `json:"consolidated_expenses"`
	ConsolidatedNetIncome types.Money `json:"consolidated_net_income"`
}

// EntityPnL computes revenue billed by entity and expenses billed to it from
// paid invoices. The renovation company also carries the actual material
// cost of finished jobs. Intercompany billing is not netted out here.
func EntityPnL(entity invoice.EntityCode, invoices []*invoice.Invoice, jobs []*job.Job, period Period) PnL {
	p := PnL{Entity: entity}

	for _, inv := range invoices {
		if inv.Status != invoice.StatusPaid || !period.Contains(inv.PaidDate()) {
			continue
		}
		if inv.From.Entity == entity {
			p.Revenue = p.Revenue.Add(inv.Total)
		}
		if inv.To.Entity == entity {
			p.Expenses = p.Expenses.Add(inv.Total)
		}
	}

	if entity == invoice.EntityKR {
		for _, j := range jobs {
			if j.Status != job.StatusComplete && j.Status != job.StatusPaidInFull {
				continue
			}
			if !period.Contains(completedAt(j)) {
				continue
			}
			p.MaterialCosts = p.MaterialCosts.Add(j.Costs.MaterialActual)
		}
		p.Expenses = p.Expenses.Add(p.MaterialCosts)
	}

	p.NetIncome = p.Revenue.Subtract(p.Expenses)
	return p
}

// Combined sums the three internal entities and eliminates intercompany
// billing once for the consolidated figures.
func Combined(invoices []*invoice.Invoice, jobs []*job.Job, period Period) CombinedPnL {
	var c CombinedPnL
	for _, e := range invoice.InternalEntities {
		p := EntityPnL(e, invoices, jobs, period)
		c.Entities = append(c.Entities, p)
		c.Revenue = c.Revenue.Add(p.Revenue)
		c.Expenses = c.Expenses.Add(p.Expenses)
	}
	c.NetIncome = c.Revenue.Subtract(c.Expenses)

	// Each internal invoice shows up once as a seller's revenue and once
	// as a buyer's expense.
	for _, e := range invoice.InternalEntities {
		for _, inv := range invoices {
			if inv.Status != invoice.StatusPaid || !period.Contains(inv.PaidDate()) {
				continue
			}
			if inv.From.Entity == e && inv.To.Entity.IsInternal() {
				c.IntercompanyRevenue = c.IntercompanyRevenue.Add(inv.Total)
			}
			if inv.To.Entity == e && inv.From.Entity.IsInternal() {
				c.IntercompanyExpenses = c.IntercompanyExpenses.Add(inv.Total)
			}
		}
	}

	c.ConsolidatedRevenue = c.Revenue.Subtract(c.IntercompanyRevenue)
	c.ConsolidatedExpenses = c.Expenses.Subtract(c.IntercompanyExpenses)
	c.ConsolidatedNetIncome = c.ConsolidatedRevenue.Subtract(c.ConsolidatedExpenses)
	return c
}

func completedAt(j *job.Job) time.Time {
	if t, ok := j.Dates[job.StatusComplete]; ok {
		return t
	}
	return j.UpdatedAt
}
