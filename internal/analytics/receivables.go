package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// ReceivablesColumns is the fixed column order of the receivables table.
var ReceivablesColumns = []string{
	"Group", "Total OS",
	string(BucketCurrent), string(Bucket1To30), string(Bucket31To60), string(Bucket61To90), string(Bucket90Plus),
	"Machine OS", "Parts OS", "Service OS",
}

// ReceivablesFilter scopes the aging and allocation report.
type ReceivablesFilter struct {
	From    time.Time
	To      time.Time
	AsOf    time.Time
	GroupBy GroupBy
}

// ReceivablesRow is one group of the receivables table.
type ReceivablesRow struct {
	Group      string          `json:"group"`
	TotalOS    decimal.Decimal `json:"total_os"`
	Current    decimal.Decimal `json:"current"`
	Days1To30  decimal.Decimal `json:"days_1_30"`
	Days31To60 decimal.Decimal `json:"days_31_60"`
	Days61To90 decimal.Decimal `json:"days_61_90"`
	Days90Plus decimal.Decimal `json:"days_90_plus"`
	MachineOS  decimal.Decimal `json:"machine_os"`
	PartsOS    decimal.Decimal `json:"parts_os"`
	ServiceOS  decimal.Decimal `json:"service_os"`
}

// Bucket returns the amount held in an aging bucket.
func (r ReceivablesRow) Bucket(b AgingBucket) decimal.Decimal {
	switch b {
	case BucketCurrent:
		return r.Current
	case Bucket1To30:
		return r.Days1To30
	case Bucket31To60:
		return r.Days31To60
	case Bucket61To90:
		return r.Days61To90
	case Bucket90Plus:
		return r.Days90Plus
	}
	return decimal.Zero
}

// BucketSum adds the five aging columns.
func (r ReceivablesRow) BucketSum() decimal.Decimal {
	sum := decimal.Zero
	for _, b := range AgingBuckets {
		sum = sum.Add(r.Bucket(b))
	}
	return sum
}

// LineSum adds the three revenue-line columns.
func (r ReceivablesRow) LineSum() decimal.Decimal {
	return r.MachineOS.Add(r.PartsOS).Add(r.ServiceOS)
}

func newReceivablesRow(group string) ReceivablesRow {
	return ReceivablesRow{
		Group:      group,
		TotalOS:    decimal.Zero,
		Current:    decimal.Zero,
		Days1To30:  decimal.Zero,
		Days31To60: decimal.Zero,
		Days61To90: decimal.Zero,
		Days90Plus: decimal.Zero,
		MachineOS:  decimal.Zero,
		PartsOS:    decimal.Zero,
		ServiceOS:  decimal.Zero,
	}
}

func (r ReceivablesRow) add(p invoicePosition) ReceivablesRow {
	r.TotalOS = r.TotalOS.Add(p.Outstanding)
	switch p.Bucket {
	case BucketCurrent:
		r.Current = r.Current.Add(p.Outstanding)
	case Bucket1To30:
		r.Days1To30 = r.Days1To30.Add(p.Outstanding)
	case Bucket31To60:
		r.Days31To60 = r.Days31To60.Add(p.Outstanding)
	case Bucket61To90:
		r.Days61To90 = r.Days61To90.Add(p.Outstanding)
	case Bucket90Plus:
		r.Days90Plus = r.Days90Plus.Add(p.Outstanding)
	}
	r.MachineOS = r.MachineOS.Add(p.Lines.Machine)
	r.PartsOS = r.PartsOS.Add(p.Lines.Parts)
	r.ServiceOS = r.ServiceOS.Add(p.Lines.Service)
	return r
}

func (r ReceivablesRow) plus(o ReceivablesRow) ReceivablesRow {
	r.TotalOS = r.TotalOS.Add(o.TotalOS)
	r.Current = r.Current.Add(o.Current)
	r.Days1To30 = r.Days1To30.Add(o.Days1To30)
	r.Days31To60 = r.Days31To60.Add(o.Days31To60)
	r.Days61To90 = r.Days61To90.Add(o.Days61To90)
	r.Days90Plus = r.Days90Plus.Add(o.Days90Plus)
	r.MachineOS = r.MachineOS.Add(o.MachineOS)
	r.PartsOS = r.PartsOS.Add(o.PartsOS)
	r.ServiceOS = r.ServiceOS.Add(o.ServiceOS)
	return r
}

// ReceivablesReport is the aging + line allocation table.
type ReceivablesReport struct {
	AsOf    time.Time        `json:"as_of"`
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	GroupBy GroupBy          `json:"group_by"`
	Rows    []ReceivablesRow `json:"rows"`
	Totals  ReceivablesRow   `json:"totals"`
}

// invoicePosition is an invoice's state at the cutoff.
type invoicePosition struct {
	Invoice     ar.Invoice
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	Bucket      AgingBucket
	Lines       LineAmounts
}

func positionOf(inv ar.Invoice, paid map[string]decimal.Decimal, asOf time.Time) invoicePosition {
	paidToDate := amountOf(paid, inv.ID)
	return invoicePosition{
		Invoice:     inv,
		Paid:        paidToDate,
		Outstanding: inv.TotalAmount.Sub(paidToDate),
		Bucket:      ClassifyAging(DaysPastDue(asOf, inv.DueDate)),
		Lines:       Allocate(inv.TotalAmount, inv.Revenue, paidToDate),
	}
}

// BuildReceivables computes outstanding per group, split by aging bucket and
// revenue line. Payments count when dated on or before filter.AsOf; invoices
// are selected by invoice date within [From, To].
func BuildReceivables(records Records, filter ReceivablesFilter) (ReceivablesReport, error) {
	key, err := filter.GroupBy.keyFunc()
	if err != nil {
		return ReceivablesReport{}, err
	}
	groupDim := filter.GroupBy
	if groupDim == "" {
		groupDim = GroupGrandTotal
	}

	paid := PaidToDate(records.Payments(), filter.AsOf)
	inRange := filterRecords(records.Invoices(), func(inv ar.Invoice) bool {
		return within(inv.InvoiceDate, filter.From, filter.To)
	})
	positions := make([]invoicePosition, 0, len(inRange))
	for _, inv := range inRange {
		positions = append(positions, positionOf(inv, paid, filter.AsOf))
	}

	groups := groupBy(positions,
		func(p invoicePosition) (string, bool) { return key(p.Invoice) },
		func(acc *ReceivablesRow, p invoicePosition) *ReceivablesRow {
			if acc == nil {
				row := newReceivablesRow("")
				acc = &row
			}
			*acc = acc.add(p)
			return acc
		},
	)
	if groupDim == GroupGrandTotal && len(groups) == 0 {
		row := newReceivablesRow(GrandTotalLabel)
		groups[GrandTotalLabel] = &row
	}

	report := ReceivablesReport{
		AsOf:    filter.AsOf,
		From:    filter.From,
		To:      filter.To,
		GroupBy: groupDim,
		Rows:    make([]ReceivablesRow, 0, len(groups)),
		Totals:  newReceivablesRow(GrandTotalLabel),
	}
	for _, name := range sortedKeys(groups) {
		row := *groups[name]
		row.Group = name
		report.Rows = append(report.Rows, row)
		report.Totals = report.Totals.plus(row)
	}
	return report, nil
}
