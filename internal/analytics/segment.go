package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// AllCompanies disables the company filter of the segment report.
const AllCompanies = "All Companies"

// Segment is a revenue category.
type Segment string

const (
	SegmentMachine Segment = "Machine"
	SegmentParts   Segment = "Parts"
	SegmentService Segment = "Service"
)

// Segments lists the categories in row order.
var Segments = []Segment{SegmentMachine, SegmentParts, SegmentService}

// SegmentLine is the second level of the segment row key.
type SegmentLine string

const (
	LineOutstanding     SegmentLine = "Outstanding as on Date"
	LinePaymentReceived SegmentLine = "Less: Payment Received"
	LineBalance         SegmentLine = "Balance OS"
)

// SegmentLines lists the line kinds in row order.
var SegmentLines = []SegmentLine{LineOutstanding, LinePaymentReceived, LineBalance}

// FiscalBucket is an inclusive calendar window.
type FiscalBucket struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (b FiscalBucket) contains(t time.Time) bool {
	return within(t, b.Start, b.End)
}

// DefaultFiscalBuckets returns the fixed fiscal windows, oldest first.
func DefaultFiscalBuckets() []FiscalBucket {
	return []FiscalBucket{
		{Label: "Older Years", Start: ar.Date(1900, time.January, 1), End: ar.Date(2023, time.March, 31)},
		{Label: "FY 23-24 H1", Start: ar.Date(2023, time.April, 1), End: ar.Date(2023, time.September, 30)},
		{Label: "FY 23-24 H2", Start: ar.Date(2023, time.October, 1), End: ar.Date(2024, time.March, 31)},
		{Label: "FY 24-25 Q1", Start: ar.Date(2024, time.April, 1), End: ar.Date(2024, time.June, 30)},
		{Label: "FY 24-25 Q2", Start: ar.Date(2024, time.July, 1), End: ar.Date(2024, time.September, 30)},
		{Label: "FY 24-25 Q3", Start: ar.Date(2024, time.October, 1), End: ar.Date(2024, time.December, 31)},
		{Label: "FY 24-25 Q4", Start: ar.Date(2025, time.January, 1), End: ar.Date(2025, time.March, 31)},
	}
}

// SegmentFilter narrows the segment report to one company.
type SegmentFilter struct {
	Company string
}

func (f SegmentFilter) allCompanies() bool {
	return f.Company == "" || f.Company == AllCompanies
}

// SegmentRow holds one (segment, line) row with one value per bucket.
type SegmentRow struct {
	Segment Segment           `json:"segment"`
	Line    SegmentLine       `json:"line"`
	Values  []decimal.Decimal `json:"values"`
}

// SegmentReport is a dense (segment × line) by bucket matrix.
type SegmentReport struct {
	Company string         `json:"company"`
	Buckets []FiscalBucket `json:"buckets"`
	Rows    []SegmentRow   `json:"rows"`
}

// BucketLabels returns the column labels in order.
func (r SegmentReport) BucketLabels() []string {
	labels := make([]string, len(r.Buckets))
	for i, b := range r.Buckets {
		labels[i] = b.Label
	}
	return labels
}

// Value looks up one cell.
func (r SegmentReport) Value(segment Segment, line SegmentLine, bucket string) (decimal.Decimal, bool) {
	col := -1
	for i, b := range r.Buckets {
		if b.Label == bucket {
			col = i
			break
		}
	}
	if col < 0 {
		return decimal.Zero, false
	}
	for _, row := range r.Rows {
		if row.Segment == segment && row.Line == line {
			return row.Values[col], true
		}
	}
	return decimal.Zero, false
}

func rowIndex(segment, line int) int {
	return segment*len(SegmentLines) + line
}

// BuildSegments computes, per fiscal bucket and revenue segment, the revenue
// invoiced in the bucket, the payments received in the same bucket against
// invoices of that bucket (split by revenue share), and the difference. A
// payment dated outside its invoice's bucket counts in no bucket.
func BuildSegments(records Records, filter SegmentFilter, buckets []FiscalBucket) SegmentReport {
	invoices := records.Invoices()
	if !filter.allCompanies() {
		invoices = filterRecords(invoices, func(inv ar.Invoice) bool {
			return inv.CompanyName == filter.Company
		})
	}
	idx := indexInvoices(invoices)

	company := filter.Company
	if company == "" {
		company = AllCompanies
	}
	report := SegmentReport{
		Company: company,
		Buckets: append([]FiscalBucket(nil), buckets...),
		Rows:    make([]SegmentRow, 0, len(Segments)*len(SegmentLines)),
	}
	for _, seg := range Segments {
		for _, line := range SegmentLines {
			values := make([]decimal.Decimal, len(buckets))
			for i := range values {
				values[i] = decimal.Zero
			}
			report.Rows = append(report.Rows, SegmentRow{Segment: seg, Line: line, Values: values})
		}
	}

	for col, bucket := range buckets {
		invoiced := LineAmounts{Machine: decimal.Zero, Parts: decimal.Zero, Service: decimal.Zero}
		for _, inv := range invoices {
			if bucket.contains(inv.InvoiceDate) {
				invoiced = invoiced.add(LineAmounts{Machine: inv.Revenue.Machine, Parts: inv.Revenue.Parts, Service: inv.Revenue.Service})
			}
		}

		received := LineAmounts{Machine: decimal.Zero, Parts: decimal.Zero, Service: decimal.Zero}
		for _, pay := range records.Payments() {
			inv, ok := idx.lookup(pay)
			if !ok || !bucket.contains(inv.InvoiceDate) || !bucket.contains(pay.PaymentDate) {
				continue
			}
			received = received.add(splitByRevenue(pay.Amount, inv.Revenue))
		}

		for s, seg := range Segments {
			os := segmentAmount(invoiced, seg)
			paid := segmentAmount(received, seg)
			report.Rows[rowIndex(s, 0)].Values[col] = os
			report.Rows[rowIndex(s, 1)].Values[col] = paid
			report.Rows[rowIndex(s, 2)].Values[col] = os.Sub(paid)
		}
	}
	return report
}

func segmentAmount(l LineAmounts, seg Segment) decimal.Decimal {
	switch seg {
	case SegmentMachine:
		return l.Machine
	case SegmentParts:
		return l.Parts
	case SegmentService:
		return l.Service
	}
	return decimal.Zero
}
