package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// LedgerDateLayout renders ledger dates as day/month/year.
const LedgerDateLayout = "02/01/2006"

// LedgerColumns is the fixed column order of the customer ledger.
var LedgerColumns = []string{"Date", "Transaction Type", "Debits", "Credits", "Running Balance"}

// LedgerFilter selects one customer's activity within a window.
type LedgerFilter struct {
	From     time.Time
	To       time.Time
	Customer string
}

// LedgerEntry is one debit or credit line.
type LedgerEntry struct {
	Date            time.Time       `json:"date"`
	DisplayDate     string          `json:"display_date"`
	TransactionType string          `json:"transaction_type"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	RunningBalance  decimal.Decimal `json:"running_balance"`
}

// Ledger is a customer's chronological statement.
type Ledger struct {
	Customer       string          `json:"customer"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Entries        []LedgerEntry   `json:"entries"`
}

// BuildLedger lists the customer's invoices (debits) and payments (credits)
// dated inside the window, ordered by date. Invoices sort ahead of payments on
// the same date; each kind keeps its source order.
func BuildLedger(records Records, filter LedgerFilter) Ledger {
	invoices := records.Invoices()
	payments := records.Payments()
	idx := indexInvoices(invoices)

	ofCustomer := func(p ar.Payment) bool {
		customer, ok := idx.customerOf(p)
		return ok && customer == filter.Customer
	}

	opening := decimal.Zero
	entries := make([]LedgerEntry, 0)
	for _, inv := range invoices {
		if inv.CustomerName != filter.Customer {
			continue
		}
		if before(inv.InvoiceDate, filter.From) {
			opening = opening.Add(inv.TotalAmount)
		}
		if within(inv.InvoiceDate, filter.From, filter.To) {
			entries = append(entries, LedgerEntry{
				Date:            ar.DateOf(inv.InvoiceDate),
				TransactionType: fmt.Sprintf("Invoice %s", inv.ID),
				Debit:           inv.TotalAmount,
				Credit:          decimal.Zero,
			})
		}
	}
	for _, pay := range payments {
		if !ofCustomer(pay) {
			continue
		}
		if before(pay.PaymentDate, filter.From) {
			opening = opening.Sub(pay.Amount)
		}
		if within(pay.PaymentDate, filter.From, filter.To) {
			entries = append(entries, LedgerEntry{
				Date:            ar.DateOf(pay.PaymentDate),
				TransactionType: fmt.Sprintf("Payment %s", pay.ID),
				Debit:           decimal.Zero,
				Credit:          pay.Amount,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	running := opening
	for i := range entries {
		running = running.Add(entries[i].Debit).Sub(entries[i].Credit)
		entries[i].RunningBalance = running
		entries[i].DisplayDate = entries[i].Date.Format(LedgerDateLayout)
	}

	return Ledger{
		Customer:       filter.Customer,
		From:           filter.From,
		To:             filter.To,
		OpeningBalance: opening,
		ClosingBalance: running,
		Entries:        entries,
	}
}
