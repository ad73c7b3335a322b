package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/kdgroup/jobledger/invoice"
)

// Table names used by sinks.
const (
	TableAging    = "Aging"
	TableMonthly  = "Monthly Revenue"
	TablePnL      = "Profit and Loss"
	TableInvoices = "Invoices"
)

func AgingTable(r AgingReport) Table {
	t := Table{Name: TableAging, Header: []string{"Bucket", "Count", "Amount", "Invoices"}}
	for _, row := range append(append([]AgingRow(nil), r.Rows...), r.Total) {
		t.Rows = append(t.Rows, []string{
			row.Bucket,
			strconv.Itoa(row.Count),
			row.Amount.FormatMajor(),
			strings.Join(row.InvoiceNumbers, ", "),
		})
	}
	return t
}

func MonthlyTable(rows []MonthRow) Table {
	t := Table{Name: TableMonthly, Header: []string{"Month", "Invoices", "Revenue"}}
	for _, row := range rows {
		t.Rows = append(t.Rows, []string{row.Month, strconv.Itoa(row.Count), row.Revenue.FormatMajor()})
	}
	return t
}

func PnLTable(c CombinedPnL) Table {
	t := Table{Name: TablePnL, Header: []string{"Entity", "Revenue", "Expenses", "Net Income"}}
	for _, p := range c.Entities {
		t.Rows = append(t.Rows, []string{
			strings.ToUpper(string(p.Entity)),
			p.Revenue.FormatMajor(),
			p.Expenses.FormatMajor(),
			p.NetIncome.FormatMajor(),
		})
	}
	t.Rows = append(t.Rows,
		[]string{"Combined", c.Revenue.FormatMajor(), c.Expenses.FormatMajor(), c.NetIncome.FormatMajor()},
		[]string{"Intercompany", c.IntercompanyRevenue.FormatMajor(), c.IntercompanyExpenses.FormatMajor(), ""},
		[]string{"Consolidated", c.ConsolidatedRevenue.FormatMajor(), c.ConsolidatedExpenses.FormatMajor(), c.ConsolidatedNetIncome.FormatMajor()},
	)
	return t
}

// InvoiceTable lists the ledger with derived display status.
func InvoiceTable(invoices []*invoice.Invoice, now time.Time) Table {
	t := Table{
		Name:   TableInvoices,
		Header: []string{"Number", "From", "To", "Total", "Status", "Due", "Paid"},
	}
	for _, inv := range invoices {
		paid := ""
		if inv.PaidAt != nil {
			paid = inv.PaidAt.UTC().Format(time.DateOnly)
		}
		t.Rows = append(t.Rows, []string{
			inv.InvoiceNumber,
			inv.From.Name,
			inv.To.Name,
			inv.Total.FormatMajor(),
			inv.DisplayStatus(now),
			inv.DueDate.UTC().Format(time.DateOnly),
			paid,
		})
	}
	return t
}
