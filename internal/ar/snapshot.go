package ar

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("receivables.snapshot"))

// Snapshot is an immutable, validated view of both record sets. Callers must
// treat the returned slices as read-only.
type Snapshot struct {
	id       uuid.UUID
	loadedAt time.Time
	invoices []Invoice
	payments []Payment
	byID     map[string]int
}

// NewSnapshot validates the records and freezes them into a snapshot. Dates are
// normalised to calendar dates.
func NewSnapshot(invoices []Invoice, payments []Payment, loadedAt time.Time) (*Snapshot, error) {
	if err := ValidateRecords(invoices, payments); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		loadedAt: loadedAt,
		invoices: make([]Invoice, len(invoices)),
		payments: make([]Payment, len(payments)),
		byID:     make(map[string]int, len(invoices)),
	}
	for i, inv := range invoices {
		inv.InvoiceDate = DateOf(inv.InvoiceDate)
		inv.DueDate = DateOf(inv.DueDate)
		snap.invoices[i] = inv
		snap.byID[inv.ID] = i
	}
	for i, pay := range payments {
		pay.PaymentDate = DateOf(pay.PaymentDate)
		snap.payments[i] = pay
	}
	snap.id = contentID(snap.invoices, snap.payments)
	return snap, nil
}

// ID identifies the snapshot content. Equal record sets produce equal IDs.
func (s *Snapshot) ID() uuid.UUID { return s.id }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Invoices returns the invoice set in source order.
func (s *Snapshot) Invoices() []Invoice { return s.invoices }

// Payments returns the payment set in source order.
func (s *Snapshot) Payments() []Payment { return s.payments }

// Invoice looks up an invoice by ID.
func (s *Snapshot) Invoice(id string) (Invoice, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Invoice{}, false
	}
	return s.invoices[idx], true
}

// Customers lists distinct non-empty customer names, sorted.
func (s *Snapshot) Customers() []string {
	return distinct(s.invoices, func(inv Invoice) string { return inv.CustomerName })
}

// Companies lists distinct non-empty company names, sorted.
func (s *Snapshot) Companies() []string {
	return distinct(s.invoices, func(inv Invoice) string { return inv.CompanyName })
}

// InvoiceDateBounds returns the earliest and latest invoice dates. ok is false
// when there are no invoices.
func (s *Snapshot) InvoiceDateBounds() (minDate, maxDate time.Time, ok bool) {
	for i, inv := range s.invoices {
		if i == 0 || inv.InvoiceDate.Before(minDate) {
			minDate = inv.InvoiceDate
		}
		if i == 0 || inv.InvoiceDate.After(maxDate) {
			maxDate = inv.InvoiceDate
		}
	}
	return minDate, maxDate, len(s.invoices) > 0
}

func distinct(invoices []Invoice, field func(Invoice) string) []string {
	set := make(map[string]struct{})
	for _, inv := range invoices {
		if v := field(inv); v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func contentID(invoices []Invoice, payments []Payment) uuid.UUID {
	var buf bytes.Buffer
	for _, inv := range invoices {
		fmt.Fprintf(&buf, "I|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			inv.ID, inv.CustomerID, inv.CustomerName, inv.CompanyName, inv.Branch,
			inv.InvoiceDate.Format(time.DateOnly), inv.DueDate.Format(time.DateOnly),
			inv.TotalAmount.String(), inv.Revenue.Machine.String(), inv.Revenue.Parts.String(), inv.Revenue.Service.String())
	}
	for _, pay := range payments {
		fmt.Fprintf(&buf, "P|%s|%s|%s|%s\n", pay.ID, pay.InvoiceID, pay.PaymentDate.Format(time.DateOnly), pay.Amount.String())
	}
	return uuid.NewSHA1(snapshotNamespace, buf.Bytes())
}
