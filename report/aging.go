// Package report aggregates the invoice ledger and job costs into aging,
// monthly revenue and profit-and-loss figures. Aggregations are pure; the
// Rebuilder pushes them to a Sink.
package report

import (
	"time"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/types"
)

// Aging bucket labels, in report order.
const (
	Bucket0To30  = "0-30 Days"
	Bucket31To60 = "31-60 Days"
	Bucket61To90 = "61-90 Days"
	Bucket90Plus = "90+ Days"
)

var bucketOrder = []string{Bucket0To30, Bucket31To60, Bucket61To90, Bucket90Plus}

type AgingRow struct {
	Bucket         string      `json:"bucket"`
	Count          int         `json:"count"`
	Amount         types.Money `json:"amount"`
	InvoiceNumbers []string    `json:"invoice_numbers"`
}

type AgingReport struct {
	AsOf  time.Time  `json:"as_of"`
	Rows  []AgingRow `json:"rows"`
	Total AgingRow   `json:"total"`
}

// DaysOverdue returns whole days elapsed since due, never negative.
func DaysOverdue(due, now time.Time) int {
	d := now.Sub(due)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// BucketFor maps days overdue to its bucket. Upper bounds are inclusive.
func BucketFor(days int) string {
	switch {
	case days <= 30:
		return Bucket0To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	}
	return Bucket90Plus
}

// Aging buckets every sent invoice by days past its due date.
func Aging(invoices []*invoice.Invoice, now time.Time) AgingReport {
	rows := make([]AgingRow, len(bucketOrder))
	index := make(map[string]int, len(bucketOrder))
	for i, b := range bucketOrder {
		rows[i] = AgingRow{Bucket: b, InvoiceNumbers: []string{}}
		index[b] = i
	}
	total := AgingRow{Bucket: "Total", InvoiceNumbers: []string{}}

	for _, inv := range invoices {
		if inv.Status != invoice.StatusSent {
			continue
		}
		row := &rows[index[BucketFor(DaysOverdue(inv.DueDate, now))]]
		row.Count++
		row.Amount = row.Amount.Add(inv.Total)
		row.InvoiceNumbers = append(row.InvoiceNumbers, inv.InvoiceNumber)

		total.Count++
		total.Amount = total.Amount.Add(inv.Total)
		total.InvoiceNumbers = append(total.InvoiceNumbers, inv.InvoiceNumber)
	}

	return AgingReport{AsOf: now, Rows: rows, Total: total}
}
