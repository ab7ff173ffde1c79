package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// LineAmounts holds one amount per revenue line.
type LineAmounts struct {
	Machine decimal.Decimal `json:"machine"`
	Parts   decimal.Decimal `json:"parts"`
	Service decimal.Decimal `json:"service"`
}

// Sum returns Machine + Parts + Service.
func (l LineAmounts) Sum() decimal.Decimal {
	return l.Machine.Add(l.Parts).Add(l.Service)
}

func (l LineAmounts) add(o LineAmounts) LineAmounts {
	return LineAmounts{
		Machine: l.Machine.Add(o.Machine),
		Parts:   l.Parts.Add(o.Parts),
		Service: l.Service.Add(o.Service),
	}
}

// PaidToDate sums payment amounts per invoice ID for payments dated on or
// before cutoff. A zero cutoff applies no bound. Invoices without payments are
// absent from the result.
func PaidToDate(payments []ar.Payment, cutoff time.Time) map[string]decimal.Decimal {
	return groupSum(payments,
		func(p ar.Payment) (string, bool) {
			return p.InvoiceID, cutoff.IsZero() || !ar.DateOf(p.PaymentDate).After(ar.DateOf(cutoff))
		},
		func(p ar.Payment) decimal.Decimal { return p.Amount },
	)
}

// Allocate spreads paid across the revenue lines in proportion to each line's
// share of total and returns what remains outstanding per line. When total is
// not positive the revenue lines are returned unchanged and no allocation is
// attempted; the line sum then need not equal total - paid.
func Allocate(total decimal.Decimal, rev ar.Revenue, paid decimal.Decimal) LineAmounts {
	if !total.IsPositive() {
		return LineAmounts{Machine: rev.Machine, Parts: rev.Parts, Service: rev.Service}
	}
	share := func(line decimal.Decimal) decimal.Decimal {
		return line.Sub(paid.Mul(line).Div(total))
	}
	return LineAmounts{
		Machine: share(rev.Machine),
		Parts:   share(rev.Parts),
		Service: share(rev.Service),
	}
}

// splitByRevenue divides amount across the lines by their share of the lines'
// own sum. A zero or negative line sum yields zero for every line.
func splitByRevenue(amount decimal.Decimal, rev ar.Revenue) LineAmounts {
	sum := rev.Sum()
	if !sum.IsPositive() {
		return LineAmounts{Machine: decimal.Zero, Parts: decimal.Zero, Service: decimal.Zero}
	}
	part := func(line decimal.Decimal) decimal.Decimal {
		return amount.Mul(line).Div(sum)
	}
	return LineAmounts{Machine: part(rev.Machine), Parts: part(rev.Parts), Service: part(rev.Service)}
}
