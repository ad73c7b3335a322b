package report

import (
	"sort"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/types"
)

type MonthRow struct {
	Month   string      `json:"month"` // YYYY-MM
	Count   int         `json:"count"`
	Revenue types.Money `json:"revenue"`
}

// Monthly groups paid invoices by the month they were paid, newest first.
func Monthly(invoices []*invoice.Invoice) []MonthRow {
	byMonth := make(map[string]*MonthRow)
	for _, inv := range invoices {
		if inv.Status != invoice.StatusPaid {
			continue
		}
		month := inv.PaidDate().UTC().Format("2006-01")
		row, ok := byMonth[month]
		if !ok {
			row = &MonthRow{Month: month}
			byMonth[month] = row
		}
		row.Count++
		row.Revenue = row.Revenue.Add(inv.Total)
	}

	out := make([]MonthRow, 0, len(byMonth))
	for _, row := range byMonth {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}
