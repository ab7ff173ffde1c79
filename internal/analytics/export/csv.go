package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/receivables/internal/analytics"
)

// amount renders a monetary value with two decimals.
func amount(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func writeAll(w io.Writer, header []string, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func receivablesRecord(row analytics.ReceivablesRow) []string {
	return []string{
		row.Group,
		amount(row.TotalOS),
		amount(row.Current),
		amount(row.Days1To30),
		amount(row.Days31To60),
		amount(row.Days61To90),
		amount(row.Days90Plus),
		amount(row.MachineOS),
		amount(row.PartsOS),
		amount(row.ServiceOS),
	}
}

// WriteReceivablesCSV prints the receivables rows under the fixed column
// order. Totals are not written; they only travel in the JSON body.
func WriteReceivablesCSV(w io.Writer, report analytics.ReceivablesReport) error {
	records := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		records = append(records, receivablesRecord(row))
	}
	return writeAll(w, analytics.ReceivablesColumns, records)
}

// WriteBankerCSV prints the banker table.
func WriteBankerCSV(w io.Writer, report analytics.BankerReport) error {
	records := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		records = append(records, []string{
			row.CustomerName,
			amount(row.OpeningBalance),
			amount(row.Debits),
			amount(row.Credits),
			amount(row.Balance),
		})
	}
	return writeAll(w, analytics.BankerColumns, records)
}

// WriteLedgerCSV prints a customer ledger with dates as DD/MM/YYYY.
func WriteLedgerCSV(w io.Writer, ledger analytics.Ledger) error {
	records := make([][]string, 0, len(ledger.Entries))
	for _, entry := range ledger.Entries {
		records = append(records, []string{
			entry.Date.Format(analytics.LedgerDateLayout),
			entry.TransactionType,
			amount(entry.Debit),
			amount(entry.Credit),
			amount(entry.RunningBalance),
		})
	}
	return writeAll(w, analytics.LedgerColumns, records)
}

// WriteSegmentsCSV prints the segment matrix: Segment, Line, then one column
// per fiscal bucket.
func WriteSegmentsCSV(w io.Writer, report analytics.SegmentReport) error {
	header := append([]string{"Segment", "Line"}, report.BucketLabels()...)
	records := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		record := make([]string, 0, len(row.Values)+2)
		record = append(record, string(row.Segment), string(row.Line))
		for _, v := range row.Values {
			record = append(record, amount(v))
		}
		records = append(records, record)
	}
	return writeAll(w, header, records)
}

// DashboardPrinter formats the dashboard figures for humans. Grouping follows
// the tag's conventions.
type DashboardPrinter struct {
	printer *message.Printer
	point   string
}

// NewDashboardPrinter builds a printer for the given language tag.
func NewDashboardPrinter(tag language.Tag) *DashboardPrinter {
	printer := message.NewPrinter(tag)
	// Decimal separator of the locale, e.g. "," for German.
	sample := printer.Sprint(number.Decimal(0.25, number.Scale(2)))
	point := strings.TrimSuffix(strings.TrimPrefix(sample, "0"), "25")
	if point == "" {
		point = "."
	}
	return &DashboardPrinter{printer: printer, point: point}
}

// Format renders v with digit grouping and two decimals. Rounding happens on
// the decimal value; only the whole part goes through the locale printer.
func (p *DashboardPrinter) Format(v decimal.Decimal) string {
	fixed := v.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return v.StringFixed(2)
	}
	sign := ""
	if v.IsNegative() && fixed != "0.00" {
		sign = "-"
	}
	return sign + p.printer.Sprint(number.Decimal(n)) + p.point + frac
}

// WriteDashboardCSV emits the dashboard summary as Section, Label, Value rows.
// Values are grouped for display, e.g. 1,234,567.00 for English.
func WriteDashboardCSV(w io.Writer, summary analytics.DashboardSummary, p *DashboardPrinter) error {
	if p == nil {
		p = NewDashboardPrinter(language.English)
	}
	records := [][]string{
		{"Summary", "Total Invoiced", p.Format(summary.TotalInvoiced)},
		{"Summary", "Total Paid", p.Format(summary.TotalPaid)},
		{"Summary", "Outstanding", p.Format(summary.Outstanding)},
	}
	for _, c := range summary.ByCompany {
		records = append(records, []string{"Outstanding by Company", c.Company, p.Format(c.Outstanding)})
	}
	for _, c := range summary.TopCustomers {
		records = append(records, []string{"Top Customers", c.Customer, p.Format(c.Outstanding)})
	}
	for _, point := range summary.Trend {
		records = append(records, []string{"Monthly Invoices", point.Period, p.Format(point.Amount)})
	}
	return writeAll(w, []string{"Section", "Label", "Value"}, records)
}
