package ar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleInvoice(id string) Invoice {
	return Invoice{
		ID:           id,
		CustomerID:   "C-1",
		CustomerName: "Acme",
		CompanyName:  "North",
		Branch:       "Delhi",
		InvoiceDate:  time.Date(2024, 1, 15, 13, 45, 0, 0, time.FixedZone("IST", 5*3600+1800)),
		DueDate:      Date(2024, 2, 14),
		TotalAmount:  decimal.NewFromInt(1000),
		Revenue: Revenue{
			Machine: decimal.NewFromInt(400),
			Parts:   decimal.NewFromInt(300),
			Service: decimal.NewFromInt(300),
		},
	}
}

func samplePayment(id, invoiceID string) Payment {
	return Payment{ID: id, InvoiceID: invoiceID, PaymentDate: Date(2024, 1, 30), Amount: decimal.NewFromInt(250)}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateRecordsReportsFirstViolation(t *testing.T) {
	missingName := sampleInvoice("INV-2")
	missingName.CustomerName = ""

	cases := []struct {
		name     string
		invoices []Invoice
		payments []Payment
		kind     RecordKind
		field    string
	}{
		{name: "missing customer", invoices: []Invoice{sampleInvoice("INV-1"), missingName}, kind: KindInvoice, field: "CustomerName"},
		{name: "duplicate invoice", invoices: []Invoice{sampleInvoice("INV-1"), sampleInvoice("INV-1")}, kind: KindInvoice, field: "ID"},
		{name: "missing invoice id on payment", invoices: []Invoice{sampleInvoice("INV-1")}, payments: []Payment{samplePayment("P-1", "")}, kind: KindPayment, field: "InvoiceID"},
		{name: "duplicate payment", payments: []Payment{samplePayment("P-1", "INV-1"), samplePayment("P-1", "INV-1")}, kind: KindPayment, field: "ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRecords(tc.invoices, tc.payments)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			require.Equal(t, tc.kind, schemaErr.Kind)
			require.Equal(t, tc.field, schemaErr.Field)
		})
	}
}

func TestValidateRecordsAllowsDanglingPaymentsAndMissingDueDate(t *testing.T) {
	inv := sampleInvoice("INV-1")
	inv.DueDate = time.Time{}
	inv.CustomerID = ""
	require.NoError(t, ValidateRecords([]Invoice{inv}, []Payment{samplePayment("P-1", "INV-404")}))
}

func TestNewSnapshotNormalisesDatesAndHashesContent(t *testing.T) {
	invoices := []Invoice{sampleInvoice("INV-1")}
	payments := []Payment{samplePayment("P-1", "INV-1")}

	first, err := NewSnapshot(invoices, payments, time.Now())
	require.NoError(t, err)
	require.True(t, first.Invoices()[0].InvoiceDate.Equal(Date(2024, 1, 15)))
	require.Equal(t, time.UTC, first.Invoices()[0].InvoiceDate.Location())

	second, err := NewSnapshot(invoices, payments, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first.ID(), second.ID())

	payments[0].Amount = decimal.NewFromInt(251)
	third, err := NewSnapshot(invoices, payments, time.Now())
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), third.ID())

	inv, ok := first.Invoice("INV-1")
	require.True(t, ok)
	require.Equal(t, "Acme", inv.CustomerName)
	_, ok = first.Invoice("INV-404")
	require.False(t, ok)
}

func TestSnapshotOptionLists(t *testing.T) {
	other := sampleInvoice("INV-2")
	other.CustomerName = "Bolt"
	other.CompanyName = "South"
	other.InvoiceDate = Date(2023, 12, 1)

	snap, err := NewSnapshot([]Invoice{sampleInvoice("INV-1"), other, sampleInvoice("INV-3")}, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"Acme", "Bolt"}, snap.Customers())
	require.Equal(t, []string{"North", "South"}, snap.Companies())

	minDate, maxDate, ok := snap.InvoiceDateBounds()
	require.True(t, ok)
	require.True(t, minDate.Equal(Date(2023, 12, 1)))
	require.True(t, maxDate.Equal(Date(2024, 1, 15)))

	empty, err := NewSnapshot(nil, nil, time.Now())
	require.NoError(t, err)
	_, _, ok = empty.InvoiceDateBounds()
	require.False(t, ok)
}

type flakySource struct {
	mu    sync.Mutex
	calls int
	err   error
	inner *MemorySource
}

func (f *flakySource) LoadRecords(ctx context.Context) ([]Invoice, []Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.inner.LoadRecords(ctx)
}

func TestStoreLoadsOnceAndKeepsSnapshotOnFailedReload(t *testing.T) {
	source := &flakySource{inner: &MemorySource{Invoices: []Invoice{sampleInvoice("INV-1")}}}
	store := NewStore(source, quietLogger())
	ctx := context.Background()

	_, err := store.Current()
	require.ErrorIs(t, err, ErrNoSnapshot)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	again, err := store.Load(ctx)
	require.NoError(t, err)
	require.Same(t, snap, again)
	require.Equal(t, 1, source.calls)

	source.err = errors.New("connection refused")
	_, err = store.Reload(ctx)
	require.ErrorIs(t, err, source.err)

	current, err := store.Current()
	require.NoError(t, err)
	require.Same(t, snap, current)
}

func TestStoreRejectsInvalidRecords(t *testing.T) {
	bad := sampleInvoice("INV-1")
	bad.Branch = ""
	store := NewStore(&MemorySource{Invoices: []Invoice{bad}}, quietLogger())

	_, err := store.Load(context.Background())
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "Branch", schemaErr.Field)
	_, err = store.Current()
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMemorySourceReturnsCopies(t *testing.T) {
	source := &MemorySource{Invoices: []Invoice{sampleInvoice("INV-1")}}
	invoices, _, err := source.LoadRecords(context.Background())
	require.NoError(t, err)
	invoices[0].CustomerName = "Changed"
	require.Equal(t, "Acme", source.Invoices[0].CustomerName)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = source.LoadRecords(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
