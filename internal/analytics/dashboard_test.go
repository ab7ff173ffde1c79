package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/ar"
)

func TestBuildDashboard(t *testing.T) {
	south := invoice("INV-4", "Delta", ar.Date(2024, 2, 20), "300", "300", "0", "0")
	south.CompanyName = "South"
	records := fixture{
		invoices: []ar.Invoice{
			invoice("INV-1", "Acme", ar.Date(2024, 1, 10), "500", "500", "0", "0"),
			invoice("INV-2", "Bolt", ar.Date(2024, 1, 25), "300", "300", "0", "0"),
			invoice("INV-3", "Core", ar.Date(2024, 2, 3), "300", "300", "0", "0"),
			south,
		},
		payments: []ar.Payment{
			payment("P1", "INV-1", ar.Date(2024, 2, 1), "200"),
			payment("P2", "INV-4", ar.Date(2024, 3, 1), "100"),
			payment("P3", "INV-404", ar.Date(2024, 3, 2), "50"),
		},
	}

	summary := BuildDashboard(records)
	requireDecimal(t, "1400", summary.TotalInvoiced, "invoiced")
	requireDecimal(t, "350", summary.TotalPaid, "paid includes orphans")
	requireDecimal(t, "1050", summary.Outstanding, "outstanding")

	require.Len(t, summary.ByCompany, 2)
	require.Equal(t, "North", summary.ByCompany[0].Company)
	requireDecimal(t, "900", summary.ByCompany[0].Outstanding, "north outstanding")
	requireDecimal(t, "200", summary.ByCompany[1].Outstanding, "south outstanding")

	got := make([]string, 0, len(summary.TopCustomers))
	for _, c := range summary.TopCustomers {
		got = append(got, c.Customer)
	}
	require.Equal(t, []string{"Acme", "Bolt", "Core", "Delta"}, got)

	require.Len(t, summary.Trend, 2)
	require.Equal(t, "2024-01", summary.Trend[0].Period)
	requireDecimal(t, "800", summary.Trend[0].Amount, "january")
	require.Equal(t, "2024-02", summary.Trend[1].Period)
	requireDecimal(t, "600", summary.Trend[1].Amount, "february")
}

func TestBuildDashboardCapsTopCustomers(t *testing.T) {
	var invoices []ar.Invoice
	for i, name := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		invoices = append(invoices, invoice("INV-"+name, name, ar.Date(2024, 1, i+1), "100", "100", "0", "0"))
	}
	summary := BuildDashboard(fixture{invoices: invoices})
	require.Len(t, summary.TopCustomers, TopCustomerLimit)
	require.Equal(t, "A", summary.TopCustomers[0].Customer)
	require.Equal(t, "E", summary.TopCustomers[TopCustomerLimit-1].Customer)
}

func TestBuildOptions(t *testing.T) {
	invoices := []ar.Invoice{
		invoice("INV-1", "Bolt", ar.Date(2024, 3, 1), "10", "10", "0", "0"),
		invoice("INV-2", "Acme", ar.Date(2023, 11, 5), "10", "10", "0", "0"),
		invoice("INV-3", "Acme", ar.Date(2024, 1, 9), "10", "10", "0", "0"),
	}
	snap, err := ar.NewSnapshot(invoices, nil, time.Now())
	require.NoError(t, err)

	opts := BuildOptions(snap)
	require.Equal(t, snap.ID().String(), opts.SnapshotID)
	require.Equal(t, []string{"Acme", "Bolt"}, opts.Customers)
	require.Equal(t, []string{AllCompanies, "North"}, opts.Companies)
	require.Len(t, opts.GroupBy, len(GroupOptions))
	require.Equal(t, "Branch Wise Details", opts.GroupBy[len(opts.GroupBy)-1].Label)
	require.True(t, opts.MinDate.Equal(ar.Date(2023, 11, 5)))
	require.True(t, opts.MaxDate.Equal(ar.Date(2024, 3, 1)))
}
