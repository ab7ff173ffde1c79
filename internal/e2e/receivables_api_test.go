package e2e

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/receivables/internal/analytics"
	analytichttp "github.com/odyssey-erp/receivables/internal/analytics/http"
	"github.com/odyssey-erp/receivables/internal/app"
	"github.com/odyssey-erp/receivables/internal/ar"
	"github.com/odyssey-erp/receivables/internal/observability"
	_ "github.com/odyssey-erp/receivables/internal/testing/guard"
	_ "github.com/odyssey-erp/receivables/testing"
)

const reloadToken = "e2e-token"

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedSource() *ar.MemorySource {
	inv := func(id, customer, company string, date time.Time, total, machine, parts, service string) ar.Invoice {
		return ar.Invoice{
			ID: id, CustomerID: "ID-" + customer, CustomerName: customer, CompanyName: company, Branch: "Main",
			InvoiceDate: date, DueDate: date.AddDate(0, 0, 30), TotalAmount: amount(total),
			Revenue: ar.Revenue{Machine: amount(machine), Parts: amount(parts), Service: amount(service)},
		}
	}
	return &ar.MemorySource{
		Invoices: []ar.Invoice{
			inv("INV-1", "Acme", "North", ar.Date(2024, 1, 10), "1000", "400", "300", "300"),
			inv("INV-2", "Acme", "North", ar.Date(2024, 2, 5), "300", "300", "0", "0"),
			inv("INV-3", "Bolt", "South", ar.Date(2024, 2, 20), "500", "0", "500", "0"),
		},
		Payments: []ar.Payment{
			{ID: "P-1", InvoiceID: "INV-1", PaymentDate: ar.Date(2024, 1, 25), Amount: amount("500")},
			{ID: "P-2", InvoiceID: "INV-3", PaymentDate: ar.Date(2024, 2, 25), Amount: amount("100")},
		},
	}
}

type harness struct {
	router http.Handler
	source *ar.MemorySource
}

func newHarness(t *testing.T) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash, err := bcrypt.GenerateFromPassword([]byte(reloadToken), bcrypt.MinCost)
	require.NoError(t, err)

	source := seedSource()
	store := ar.NewStore(source, logger)
	metrics := observability.NewMetrics()
	svc := analytics.NewService(store, analytics.NewCache(client, time.Minute), logger).
		WithObserver(metrics).
		WithClock(func() time.Time { return time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC) })

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Metrics:        metrics,
		ReportsHandler: analytichttp.NewHandler(logger, svc, string(hash), 5*time.Second),
	})
	return harness{router: router, source: source}
}

func (h harness) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestReceivablesAPIEndToEnd(t *testing.T) {
	h := newHarness(t)

	aging := decode[analytics.ReceivablesReport](t, h.do(t, http.MethodGet, "/api/receivables/aging?group_by=Company+Name", ""))
	require.Len(t, aging.Rows, 2)
	require.Equal(t, "North", aging.Rows[0].Group)
	require.True(t, aging.Rows[0].TotalOS.Equal(amount("800")))
	require.True(t, aging.Totals.TotalOS.Equal(amount("1200")))
	for _, row := range aging.Rows {
		require.True(t, row.TotalOS.Equal(row.BucketSum()), row.Group)
	}

	period := "from=2024-02-01&to=2024-02-29"
	banker := decode[analytics.BankerReport](t, h.do(t, http.MethodGet, "/api/receivables/banker?"+period, ""))
	acme, ok := banker.Row("Acme")
	require.True(t, ok)
	require.True(t, acme.OpeningBalance.Equal(amount("500")))
	require.True(t, acme.Balance.Equal(amount("800")))

	ledger := decode[analytics.Ledger](t, h.do(t, http.MethodGet, "/api/receivables/ledger?customer=Acme&"+period, ""))
	require.True(t, ledger.ClosingBalance.Equal(acme.Balance))

	rr := h.do(t, http.MethodGet, "/api/receivables/segments?company=South&format=csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 10)
	require.True(t, strings.HasPrefix(lines[0], "Segment,Line,Older Years"))

	options := decode[analytics.Options](t, h.do(t, http.MethodGet, "/api/receivables/options", ""))
	require.Equal(t, []string{analytics.AllCompanies, "North", "South"}, options.Companies)
}

func TestReloadEndpointPicksUpNewRecords(t *testing.T) {
	h := newHarness(t)

	before := decode[map[string]json.RawMessage](t, h.do(t, http.MethodGet, "/api/receivables/dashboard", ""))
	require.Contains(t, string(before["summary"]), `"total_paid":"600"`)

	h.source.Payments = append(h.source.Payments, ar.Payment{ID: "P-3", InvoiceID: "INV-2", PaymentDate: ar.Date(2024, 3, 1), Amount: amount("300")})

	rr := h.do(t, http.MethodPost, "/api/receivables/snapshot/reload", "wrong")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	result := decode[analytics.ReloadResult](t, h.do(t, http.MethodPost, "/api/receivables/snapshot/reload", reloadToken))
	require.True(t, result.Changed)
	require.Equal(t, 3, result.Payments)

	after := decode[map[string]json.RawMessage](t, h.do(t, http.MethodGet, "/api/receivables/dashboard", ""))
	require.Contains(t, string(after["summary"]), `"total_paid":"900"`)

	metrics := h.do(t, http.MethodGet, "/metrics", "")
	require.Contains(t, metrics.Body.String(), `receivables_reports_total{outcome="miss",report="dashboard"}`)
}

func TestSuiteRunsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotEmpty(t, os.Getenv("REDIS_ADDR"))
}
