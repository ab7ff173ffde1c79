package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// Records is the read-only record view every generator consumes. *ar.Snapshot
// satisfies it.
type Records interface {
	Invoices() []ar.Invoice
	Payments() []ar.Payment
}

// groupBy folds records into one accumulator per key. Records for which key
// reports false are skipped.
func groupBy[T any, K comparable, A any](records []T, key func(T) (K, bool), fold func(A, T) A) map[K]A {
	out := make(map[K]A)
	for _, rec := range records {
		k, ok := key(rec)
		if !ok {
			continue
		}
		out[k] = fold(out[k], rec)
	}
	return out
}

// groupSum sums value per key.
func groupSum[T any, K comparable](records []T, key func(T) (K, bool), value func(T) decimal.Decimal) map[K]decimal.Decimal {
	return groupBy(records, key, func(acc decimal.Decimal, rec T) decimal.Decimal {
		return acc.Add(value(rec))
	})
}

// amountOf is the explicit missing-as-zero lookup.
func amountOf[K comparable](m map[K]decimal.Decimal, key K) decimal.Decimal {
	if v, ok := m[key]; ok {
		return v
	}
	return decimal.Zero
}

func sortedKeys[K cmp.Ordered, V any](maps ...map[K]V) []K {
	set := make(map[K]struct{})
	for _, m := range maps {
		for k := range m {
			set[k] = struct{}{}
		}
	}
	keys := make([]K, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func filterRecords[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// invoiceIndex backs the payment → invoice left join.
type invoiceIndex map[string]ar.Invoice

func indexInvoices(invoices []ar.Invoice) invoiceIndex {
	idx := make(invoiceIndex, len(invoices))
	for _, inv := range invoices {
		idx[inv.ID] = inv
	}
	return idx
}

// lookup resolves a payment's invoice. Orphaned payments report false.
func (idx invoiceIndex) lookup(p ar.Payment) (ar.Invoice, bool) {
	inv, ok := idx[p.InvoiceID]
	return inv, ok
}

func (idx invoiceIndex) customerOf(p ar.Payment) (string, bool) {
	inv, ok := idx.lookup(p)
	if !ok {
		return "", false
	}
	return inv.CustomerName, true
}

// within reports whether t falls in [from, to] at date granularity. A zero
// bound is open.
func within(t, from, to time.Time) bool {
	d := ar.DateOf(t)
	if !from.IsZero() && d.Before(ar.DateOf(from)) {
		return false
	}
	if !to.IsZero() && d.After(ar.DateOf(to)) {
		return false
	}
	return true
}

// before reports whether t is strictly earlier than bound's date. A zero bound
// admits nothing.
func before(t, bound time.Time) bool {
	if bound.IsZero() {
		return false
	}
	return ar.DateOf(t).Before(ar.DateOf(bound))
}
