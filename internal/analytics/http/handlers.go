package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/receivables/internal/analytics"
	"github.com/odyssey-erp/receivables/internal/analytics/export"
	"github.com/odyssey-erp/receivables/internal/ar"
	"github.com/odyssey-erp/receivables/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

const defaultRequestTimeout = 5 * time.Second

// dashboardLocales are the number formats offered for the dashboard CSV.
// en-IN groups digits in lakhs and crores.
var dashboardLocales = language.NewMatcher([]language.Tag{
	language.English,
	language.MustParse("en-IN"),
	language.German,
})

// ReportService defines the receivables reporting contract used by the handler.
type ReportService interface {
	Receivables(ctx context.Context, filter analytics.ReceivablesFilter) (analytics.ReceivablesReport, error)
	Banker(ctx context.Context, filter analytics.PeriodFilter) (analytics.BankerReport, error)
	Ledger(ctx context.Context, filter analytics.LedgerFilter) (analytics.Ledger, error)
	Segments(ctx context.Context, filter analytics.SegmentFilter) (analytics.SegmentReport, error)
	Dashboard(ctx context.Context) (analytics.DashboardSummary, error)
	Options(ctx context.Context) (analytics.Options, error)
	Reload(ctx context.Context) (analytics.ReloadResult, error)
}

// Handler serves the receivables report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	validate  *validator.Validate
	tokenHash []byte
	timeout   time.Duration
	csvPool   sync.Pool
}

// NewHandler constructs the receivables HTTP handler. An empty tokenHash
// disables the reload endpoint.
func NewHandler(logger *slog.Logger, service ReportService, tokenHash string, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("query"); name != "" {
			return name
		}
		return field.Name
	})
	h := &Handler{
		logger:   logger,
		service:  service,
		validate: validate,
		timeout:  timeout,
	}
	if tokenHash != "" {
		h.tokenHash = []byte(tokenHash)
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

type agingQuery struct {
	From    string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	AsOf    string `query:"as_of" validate:"omitempty,datetime=2006-01-02"`
	GroupBy string `query:"group_by" validate:"omitempty,max=64"`
	Format  string `query:"format" validate:"omitempty,oneof=json csv"`
}

type periodQuery struct {
	From   string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

type ledgerQuery struct {
	Customer string `query:"customer" validate:"required,max=200"`
	From     string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Format   string `query:"format" validate:"omitempty,oneof=json csv"`
}

type segmentQuery struct {
	Company string `query:"company" validate:"omitempty,max=200"`
	Format  string `query:"format" validate:"omitempty,oneof=json csv"`
}

type formatQuery struct {
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

// bindQuery copies the query parameters named by the struct's query tags into
// dst and validates it.
func (h *Handler) bindQuery(r *http.Request, dst any) error {
	values := r.URL.Query()
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("query")
		if name == "" {
			continue
		}
		v.Field(i).SetString(strings.TrimSpace(values.Get(name)))
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", httpx.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	var q agingQuery
	if err := h.bindQuery(r, &q); err != nil {
		h.respondError(w, "parse aging query", err)
		return
	}
	groupBy, err := analytics.ParseGroupBy(q.GroupBy)
	if err != nil {
		h.respondError(w, "parse group by", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Receivables(ctx, analytics.ReceivablesFilter{
		From:    parseDate(q.From),
		To:      parseDate(q.To),
		AsOf:    parseDate(q.AsOf),
		GroupBy: groupBy,
	})
	if err != nil {
		h.respondError(w, "receivables report", err)
		return
	}
	if q.Format == "csv" {
		h.writeCSV(w, "receivables-"+string(report.GroupBy), func(buf io.Writer) error {
			return export.WriteReceivablesCSV(buf, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleBanker(w http.ResponseWriter, r *http.Request) {
	var q periodQuery
	if err := h.bindQuery(r, &q); err != nil {
		h.respondError(w, "parse banker query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Banker(ctx, analytics.PeriodFilter{From: parseDate(q.From), To: parseDate(q.To)})
	if err != nil {
		h.respondError(w, "banker report", err)
		return
	}
	if q.Format == "csv" {
		h.writeCSV(w, "banker", func(buf io.Writer) error {
			return export.WriteBankerCSV(buf, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	var q ledgerQuery
	if err := h.bindQuery(r, &q); err != nil {
		h.respondError(w, "parse ledger query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ledger, err := h.service.Ledger(ctx, analytics.LedgerFilter{
		Customer: q.Customer,
		From:     parseDate(q.From),
		To:       parseDate(q.To),
	})
	if err != nil {
		h.respondError(w, "customer ledger", err)
		return
	}
	if q.Format == "csv" {
		h.writeCSV(w, "ledger", func(buf io.Writer) error {
			return export.WriteLedgerCSV(buf, ledger)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) handleSegments(w http.ResponseWriter, r *http.Request) {
	var q segmentQuery
	if err := h.bindQuery(r, &q); err != nil {
		h.respondError(w, "parse segment query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Segments(ctx, analytics.SegmentFilter{Company: q.Company})
	if err != nil {
		h.respondError(w, "segment report", err)
		return
	}
	if q.Format == "csv" {
		h.writeCSV(w, "segments", func(buf io.Writer) error {
			return export.WriteSegmentsCSV(buf, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type dashboardResponse struct {
	Summary        analytics.DashboardSummary `json:"summary"`
	Aging          analytics.ReceivablesRow   `json:"aging"`
	AgingByCompany []analytics.ReceivablesRow `json:"aging_by_company"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var q formatQuery
	if err := h.bindQuery(r, &q); err != nil {
		h.respondError(w, "parse dashboard query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}
	if q.Format == "csv" {
		h.writeCSV(w, "dashboard", func(buf io.Writer) error {
			tag, _ := language.MatchStrings(dashboardLocales, r.Header.Get("Accept-Language"))
			return export.WriteDashboardCSV(buf, data.Summary, export.NewDashboardPrinter(tag))
		})
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) loadDashboardData(ctx context.Context) (dashboardResponse, error) {
	var data dashboardResponse
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := h.service.Dashboard(ctx)
		if err != nil {
			return err
		}
		data.Summary = summary
		return nil
	})

	g.Go(func() error {
		report, err := h.service.Receivables(ctx, analytics.ReceivablesFilter{GroupBy: analytics.GroupGrandTotal})
		if err != nil {
			return err
		}
		data.Aging = report.Totals
		return nil
	})

	g.Go(func() error {
		report, err := h.service.Receivables(ctx, analytics.ReceivablesFilter{GroupBy: analytics.GroupCompany})
		if err != nil {
			return err
		}
		data.AgingByCompany = report.Rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return dashboardResponse{}, err
	}
	return data, nil
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	opts, err := h.service.Options(ctx)
	if err != nil {
		h.respondError(w, "load options", err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if len(h.tokenHash) == 0 {
		h.respondError(w, "reload", fmt.Errorf("%w: snapshot reload disabled", httpx.ErrNotFound))
		return
	}
	token, ok := bearerToken(r)
	if !ok || bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid reload token", httpx.ErrUnauthorized))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.Reload(ctx)
	if err != nil {
		h.respondError(w, "reload snapshot", err)
		return
	}
	h.logger.Info("snapshot reloaded via api",
		slog.String("snapshot_id", result.SnapshotID),
		slog.Bool("changed", result.Changed))
	httpx.JSON(w, http.StatusOK, result)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (h *Handler) writeCSV(w http.ResponseWriter, name string, write func(io.Writer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := write(buf); err != nil {
		h.respondError(w, "write csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", name))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

// respondError maps report errors onto problem responses. Parameter problems
// are 400, a missing or invalid snapshot is 503.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var schemaErr *ar.SchemaError
	switch {
	case errors.Is(err, analytics.ErrUnknownGroupBy),
		errors.Is(err, analytics.ErrInvalidPeriod),
		errors.Is(err, analytics.ErrCustomerRequired):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, ar.ErrNoSnapshot), errors.As(err, &schemaErr):
		h.logError(op, err)
		err = fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		h.logError(op, err)
		err = fmt.Errorf("%w: %s timed out", httpx.ErrUnavailable, op)
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrNotFound):
	default:
		h.logError(op, err)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) logError(op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
}
