package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// TopCustomerLimit caps the top-customers card.
const TopCustomerLimit = 5

// TrendPeriodLayout formats the invoice trend period key.
const TrendPeriodLayout = "2006-01"

// CompanyOutstanding is one bar of the by-company card.
type CompanyOutstanding struct {
	Company     string          `json:"company"`
	Invoiced    decimal.Decimal `json:"invoiced"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// CustomerOutstanding is one entry of the top-customers card.
type CustomerOutstanding struct {
	Customer    string          `json:"customer"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// InvoiceTrendPoint conveys the invoiced total of one calendar month.
type InvoiceTrendPoint struct {
	Period string          `json:"period"`
	Amount decimal.Decimal `json:"amount"`
}

// DashboardSummary contains the receivables indicators surfaced on the dashboard.
type DashboardSummary struct {
	TotalInvoiced decimal.Decimal       `json:"total_invoiced"`
	TotalPaid     decimal.Decimal       `json:"total_paid"`
	Outstanding   decimal.Decimal       `json:"outstanding"`
	ByCompany     []CompanyOutstanding  `json:"by_company"`
	TopCustomers  []CustomerOutstanding `json:"top_customers"`
	Trend         []InvoiceTrendPoint   `json:"trend"`
}

// BuildDashboard computes headline totals over every record. Total paid counts
// all payments, orphans included; the per-company and per-customer breakdowns
// only see payments that join to an invoice.
func BuildDashboard(records Records) DashboardSummary {
	invoices := records.Invoices()
	payments := records.Payments()
	idx := indexInvoices(invoices)

	summary := DashboardSummary{
		TotalInvoiced: decimal.Zero,
		TotalPaid:     decimal.Zero,
	}
	for _, inv := range invoices {
		summary.TotalInvoiced = summary.TotalInvoiced.Add(inv.TotalAmount)
	}
	for _, pay := range payments {
		summary.TotalPaid = summary.TotalPaid.Add(pay.Amount)
	}
	summary.Outstanding = summary.TotalInvoiced.Sub(summary.TotalPaid)

	invoiceTotal := func(inv ar.Invoice) decimal.Decimal { return inv.TotalAmount }
	paymentAmount := func(p ar.Payment) decimal.Decimal { return p.Amount }

	invByCompany := groupSum(invoices, func(inv ar.Invoice) (string, bool) {
		return inv.CompanyName, true
	}, invoiceTotal)
	payByCompany := groupSum(payments, func(p ar.Payment) (string, bool) {
		inv, ok := idx.lookup(p)
		return inv.CompanyName, ok
	}, paymentAmount)
	companies := sortedKeys(invByCompany, payByCompany)
	summary.ByCompany = make([]CompanyOutstanding, 0, len(companies))
	for _, company := range companies {
		invoiced := amountOf(invByCompany, company)
		paid := amountOf(payByCompany, company)
		summary.ByCompany = append(summary.ByCompany, CompanyOutstanding{
			Company:     company,
			Invoiced:    invoiced,
			Paid:        paid,
			Outstanding: invoiced.Sub(paid),
		})
	}

	invByCustomer := groupSum(invoices, func(inv ar.Invoice) (string, bool) {
		return inv.CustomerName, true
	}, invoiceTotal)
	payByCustomer := groupSum(payments, idx.customerOf, paymentAmount)
	customers := sortedKeys(invByCustomer, payByCustomer)
	ranked := make([]CustomerOutstanding, 0, len(customers))
	for _, customer := range customers {
		ranked = append(ranked, CustomerOutstanding{
			Customer:    customer,
			Outstanding: amountOf(invByCustomer, customer).Sub(amountOf(payByCustomer, customer)),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Outstanding.GreaterThan(ranked[j].Outstanding)
	})
	if len(ranked) > TopCustomerLimit {
		ranked = ranked[:TopCustomerLimit]
	}
	summary.TopCustomers = ranked

	byMonth := groupSum(invoices, func(inv ar.Invoice) (string, bool) {
		return ar.DateOf(inv.InvoiceDate).Format(TrendPeriodLayout), true
	}, invoiceTotal)
	months := sortedKeys(byMonth)
	summary.Trend = make([]InvoiceTrendPoint, 0, len(months))
	for _, month := range months {
		summary.Trend = append(summary.Trend, InvoiceTrendPoint{Period: month, Amount: byMonth[month]})
	}
	return summary
}

// Options lists the filter choices offered for a snapshot.
type Options struct {
	SnapshotID string    `json:"snapshot_id"`
	Customers  []string  `json:"customers"`
	Companies  []string  `json:"companies"`
	GroupBy    []Option  `json:"group_by"`
	MinDate    time.Time `json:"min_date"`
	MaxDate    time.Time `json:"max_date"`
}

// Option is a key/label pair.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// BuildOptions derives the option lists from a snapshot.
func BuildOptions(snap *ar.Snapshot) Options {
	minDate, maxDate, _ := snap.InvoiceDateBounds()
	groups := make([]Option, 0, len(GroupOptions))
	for _, g := range GroupOptions {
		groups = append(groups, Option{Value: string(g), Label: g.Label()})
	}
	return Options{
		SnapshotID: snap.ID().String(),
		Customers:  snap.Customers(),
		Companies:  append([]string{AllCompanies}, snap.Companies()...),
		GroupBy:    groups,
		MinDate:    minDate,
		MaxDate:    maxDate,
	}
}
