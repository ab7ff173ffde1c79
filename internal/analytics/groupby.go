package analytics

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// GroupBy selects the receivables grouping dimension.
type GroupBy string

const (
	GroupGrandTotal   GroupBy = "grand_total"
	GroupCustomerID   GroupBy = "customer_id"
	GroupCompany      GroupBy = "company"
	GroupCustomerName GroupBy = "customer_name"
	GroupBranch       GroupBy = "branch"
)

// GrandTotalLabel names the single row of an ungrouped receivables report.
const GrandTotalLabel = "Grand Total"

// ErrUnknownGroupBy is returned for a grouping dimension outside GroupOptions.
var ErrUnknownGroupBy = errors.New("analytics: unknown group by")

// GroupOptions lists the supported dimensions in presentation order.
var GroupOptions = []GroupBy{GroupGrandTotal, GroupCustomerID, GroupCompany, GroupCustomerName, GroupBranch}

var groupLabels = map[GroupBy]string{
	GroupGrandTotal:   GrandTotalLabel,
	GroupCustomerID:   "Customer ID",
	GroupCompany:      "Company Name",
	GroupCustomerName: "Customer Name",
	GroupBranch:       "Branch Wise Details",
}

// Label returns the display name of the dimension.
func (g GroupBy) Label() string {
	if label, ok := groupLabels[g]; ok {
		return label
	}
	return string(g)
}

// Valid reports whether g is a supported dimension.
func (g GroupBy) Valid() bool {
	_, ok := groupLabels[g]
	return ok
}

var fold = cases.Fold()

// ParseGroupBy accepts either the key ("customer_name") or the display name
// ("Customer Name"), case-insensitively. Empty input means GroupGrandTotal.
func ParseGroupBy(raw string) (GroupBy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return GroupGrandTotal, nil
	}
	needle := fold.String(raw)
	for _, g := range GroupOptions {
		if needle == fold.String(string(g)) || needle == fold.String(g.Label()) {
			return g, nil
		}
	}
	if needle == fold.String("Branch") {
		return GroupBranch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGroupBy, raw)
}

// keyFunc extracts the group key from an invoice. Invoices with an empty key
// are left out of grouped reports.
func (g GroupBy) keyFunc() (func(ar.Invoice) (string, bool), error) {
	nonEmpty := func(field func(ar.Invoice) string) func(ar.Invoice) (string, bool) {
		return func(inv ar.Invoice) (string, bool) {
			v := field(inv)
			return v, v != ""
		}
	}
	switch g {
	case GroupGrandTotal, "":
		return func(ar.Invoice) (string, bool) { return GrandTotalLabel, true }, nil
	case GroupCustomerID:
		return nonEmpty(func(inv ar.Invoice) string { return inv.CustomerID }), nil
	case GroupCompany:
		return nonEmpty(func(inv ar.Invoice) string { return inv.CompanyName }), nil
	case GroupCustomerName:
		return nonEmpty(func(inv ar.Invoice) string { return inv.CustomerName }), nil
	case GroupBranch:
		return nonEmpty(func(inv ar.Invoice) string { return inv.Branch }), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGroupBy, string(g))
}
