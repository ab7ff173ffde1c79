package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// BankerColumns is the fixed column order of the banker table.
var BankerColumns = []string{"Customer Name", "Opening Balance", "Debits (Invoices)", "Credits (Payments)", "Balance"}

// PeriodFilter is an inclusive date window.
type PeriodFilter struct {
	From time.Time
	To   time.Time
}

// BankerRow carries one customer's opening and closing position.
type BankerRow struct {
	CustomerName   string          `json:"customer_name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Debits         decimal.Decimal `json:"debits"`
	Credits        decimal.Decimal `json:"credits"`
	Balance        decimal.Decimal `json:"balance"`
}

// BankerReport lists every customer with activity before or inside the window.
type BankerReport struct {
	From time.Time   `json:"from"`
	To   time.Time   `json:"to"`
	Rows []BankerRow `json:"rows"`
}

// Row finds a customer's row.
func (r BankerReport) Row(customer string) (BankerRow, bool) {
	for _, row := range r.Rows {
		if row.CustomerName == customer {
			return row, true
		}
	}
	return BankerRow{}, false
}

// BuildBanker computes opening balance (invoices minus payments strictly
// before From), in-window debits and credits, and the closing balance for
// each customer. Payments reach their customer through their invoice; orphans
// are dropped.
func BuildBanker(records Records, filter PeriodFilter) BankerReport {
	invoices := records.Invoices()
	payments := records.Payments()
	idx := indexInvoices(invoices)

	invoiceTotal := func(inv ar.Invoice) decimal.Decimal { return inv.TotalAmount }
	paymentAmount := func(p ar.Payment) decimal.Decimal { return p.Amount }

	invBefore := groupSum(invoices, func(inv ar.Invoice) (string, bool) {
		return inv.CustomerName, before(inv.InvoiceDate, filter.From)
	}, invoiceTotal)
	invRange := groupSum(invoices, func(inv ar.Invoice) (string, bool) {
		return inv.CustomerName, within(inv.InvoiceDate, filter.From, filter.To)
	}, invoiceTotal)
	payBefore := groupSum(payments, func(p ar.Payment) (string, bool) {
		customer, ok := idx.customerOf(p)
		return customer, ok && before(p.PaymentDate, filter.From)
	}, paymentAmount)
	payRange := groupSum(payments, func(p ar.Payment) (string, bool) {
		customer, ok := idx.customerOf(p)
		return customer, ok && within(p.PaymentDate, filter.From, filter.To)
	}, paymentAmount)

	customers := sortedKeys(invBefore, payBefore, invRange, payRange)
	report := BankerReport{From: filter.From, To: filter.To, Rows: make([]BankerRow, 0, len(customers))}
	for _, customer := range customers {
		opening := amountOf(invBefore, customer).Sub(amountOf(payBefore, customer))
		debits := amountOf(invRange, customer)
		credits := amountOf(payRange, customer)
		report.Rows = append(report.Rows, BankerRow{
			CustomerName:   customer,
			OpeningBalance: opening,
			Debits:         debits,
			Credits:        credits,
			Balance:        opening.Add(debits).Sub(credits),
		})
	}
	return report
}
