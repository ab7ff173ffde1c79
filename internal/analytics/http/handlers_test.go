package analytichttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/receivables/internal/analytics"
	"github.com/odyssey-erp/receivables/internal/ar"
	_ "github.com/odyssey-erp/receivables/testing"
)

type stubService struct {
	mu          sync.Mutex
	receivables []analytics.ReceivablesFilter
	ledger      analytics.LedgerFilter
	reloads     int
	err         error
}

func (s *stubService) Receivables(ctx context.Context, filter analytics.ReceivablesFilter) (analytics.ReceivablesReport, error) {
	s.mu.Lock()
	s.receivables = append(s.receivables, filter)
	s.mu.Unlock()
	if s.err != nil {
		return analytics.ReceivablesReport{}, s.err
	}
	row := analytics.ReceivablesRow{Group: "North", TotalOS: decimal.NewFromInt(800), Days1To30: decimal.NewFromInt(800)}
	totals := row
	totals.Group = analytics.GrandTotalLabel
	return analytics.ReceivablesReport{GroupBy: filter.GroupBy, Rows: []analytics.ReceivablesRow{row}, Totals: totals}, nil
}

func (s *stubService) Banker(ctx context.Context, filter analytics.PeriodFilter) (analytics.BankerReport, error) {
	return analytics.BankerReport{From: filter.From, To: filter.To}, s.err
}

func (s *stubService) Ledger(ctx context.Context, filter analytics.LedgerFilter) (analytics.Ledger, error) {
	s.ledger = filter
	return analytics.Ledger{Customer: filter.Customer}, s.err
}

func (s *stubService) Segments(ctx context.Context, filter analytics.SegmentFilter) (analytics.SegmentReport, error) {
	return analytics.SegmentReport{Company: filter.Company}, s.err
}

func (s *stubService) Dashboard(ctx context.Context) (analytics.DashboardSummary, error) {
	return analytics.DashboardSummary{TotalInvoiced: decimal.NewFromInt(1000), TotalPaid: decimal.NewFromInt(200), Outstanding: decimal.NewFromInt(800)}, s.err
}

func (s *stubService) Options(ctx context.Context) (analytics.Options, error) {
	return analytics.Options{Customers: []string{"Acme"}}, s.err
}

func (s *stubService) Reload(ctx context.Context) (analytics.ReloadResult, error) {
	s.reloads++
	return analytics.ReloadResult{SnapshotID: "snap-1", Changed: true}, s.err
}

func newTestRouter(t *testing.T, service ReportService, tokenHash string) http.Handler {
	t.Helper()
	handler := NewHandler(nil, service, tokenHash, time.Second)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func serve(router http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAgingParsesFilters(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(t, service, "")

	rr := serve(router, http.MethodGet, "/api/receivables/aging?from=2024-01-01&to=2024-03-31&group_by=Customer+Name", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(service.receivables) != 1 {
		t.Fatalf("expected one service call, got %d", len(service.receivables))
	}
	got := service.receivables[0]
	if got.GroupBy != analytics.GroupCustomerName {
		t.Fatalf("expected customer_name grouping, got %q", got.GroupBy)
	}
	if !got.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !got.To.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %s..%s", got.From, got.To)
	}

	var report analytics.ReceivablesReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(report.Rows) != 1 || !report.Rows[0].TotalOS.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected rows %+v", report.Rows)
	}
}

func TestInvalidParametersReturnBadRequest(t *testing.T) {
	router := newTestRouter(t, &stubService{}, "")
	cases := map[string]string{
		"malformed date":   "/api/receivables/aging?from=2024-13-01",
		"unknown group":    "/api/receivables/aging?group_by=region",
		"unknown format":   "/api/receivables/banker?format=xlsx",
		"missing customer": "/api/receivables/ledger?from=2024-01-01",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(router, http.MethodGet, target, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Fatalf("unexpected content type %s", ct)
			}
		})
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid period", err: analytics.ErrInvalidPeriod, want: http.StatusBadRequest},
		{name: "no snapshot", err: ar.ErrNoSnapshot, want: http.StatusServiceUnavailable},
		{name: "schema", err: &ar.SchemaError{Kind: ar.KindInvoice, Field: "CustomerName", Reason: "is required"}, want: http.StatusServiceUnavailable},
		{name: "other", err: context.Canceled, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, &stubService{err: tc.err}, "")
			rr := serve(router, http.MethodGet, "/api/receivables/banker", nil)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestLedgerPassesCustomer(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(t, service, "")
	rr := serve(router, http.MethodGet, "/api/receivables/ledger?customer=Acme+Ltd", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if service.ledger.Customer != "Acme Ltd" {
		t.Fatalf("unexpected customer %q", service.ledger.Customer)
	}
}

func TestAgingCSVExport(t *testing.T) {
	router := newTestRouter(t, &stubService{}, "")
	rr := serve(router, http.MethodGet, "/api/receivables/aging?group_by=company&format=csv", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "receivables-company.csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row without totals, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Group,Total OS,Current,1-30 Days") {
		t.Fatalf("unexpected header %s", lines[0])
	}
	if lines[1] != "North,800.00,0.00,800.00,0.00,0.00,0.00,0.00,0.00,0.00" {
		t.Fatalf("unexpected row %s", lines[1])
	}
}

func TestDashboardFansOut(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(t, service, "")
	rr := serve(router, http.MethodGet, "/api/receivables/dashboard", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body dashboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Summary.Outstanding.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected outstanding %s", body.Summary.Outstanding)
	}
	if body.Aging.Group != analytics.GrandTotalLabel {
		t.Fatalf("expected grand total aging row, got %q", body.Aging.Group)
	}
	if len(body.AgingByCompany) != 1 {
		t.Fatalf("expected company aging rows, got %d", len(body.AgingByCompany))
	}
	if len(service.receivables) != 2 {
		t.Fatalf("expected two receivables calls, got %d", len(service.receivables))
	}
}

func TestReloadRequiresToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	t.Run("disabled", func(t *testing.T) {
		router := newTestRouter(t, &stubService{}, "")
		rr := serve(router, http.MethodPost, "/api/receivables/snapshot/reload", nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		service := &stubService{}
		router := newTestRouter(t, service, string(hash))
		rr := serve(router, http.MethodPost, "/api/receivables/snapshot/reload", http.Header{"Authorization": {"Bearer nope"}})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if service.reloads != 0 {
			t.Fatalf("reload must not run without a valid token")
		}
	})

	t.Run("valid token", func(t *testing.T) {
		service := &stubService{}
		router := newTestRouter(t, service, string(hash))
		rr := serve(router, http.MethodPost, "/api/receivables/snapshot/reload", http.Header{"Authorization": {"Bearer s3cret"}})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if service.reloads != 1 {
			t.Fatalf("expected one reload, got %d", service.reloads)
		}
		if !strings.Contains(rr.Body.String(), `"snapshot_id":"snap-1"`) {
			t.Fatalf("unexpected body %s", rr.Body.String())
		}
	})
}

func TestDashboardCSVUsesEnglishGroupingByDefault(t *testing.T) {
	router := newTestRouter(t, &stubService{}, "")
	rr := serve(router, http.MethodGet, "/api/receivables/dashboard?format=csv", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if lines[0] != "Section,Label,Value" {
		t.Fatalf("unexpected header %s", lines[0])
	}
	if lines[1] != `Summary,Total Invoiced,"1,000.00"` {
		t.Fatalf("unexpected summary row %s", lines[1])
	}
}

func TestHandlersRunInTestMode(t *testing.T) {
	if os.Getenv("RECEIVABLES_TEST_MODE") != "1" {
		t.Fatalf("expected test mode, got %q", os.Getenv("RECEIVABLES_TEST_MODE"))
	}
	if os.Getenv("REDIS_ADDR") == "" {
		t.Fatalf("expected a placeholder redis address")
	}
}
