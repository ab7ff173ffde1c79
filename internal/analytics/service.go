package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// Report names used for cache keys and metrics.
const (
	ReportReceivables = "aging"
	ReportBanker      = "banker"
	ReportLedger      = "ledger"
	ReportSegments    = "segments"
	ReportDashboard   = "dashboard"
)

var (
	// ErrCustomerRequired is returned when a ledger is requested without a customer.
	ErrCustomerRequired = errors.New("analytics: customer required")
	// ErrInvalidPeriod is returned when From is after To.
	ErrInvalidPeriod = errors.New("analytics: from must not be after to")
)

// SnapshotStore hands out the current record snapshot. *ar.Store satisfies it.
type SnapshotStore interface {
	Load(ctx context.Context) (*ar.Snapshot, error)
	Reload(ctx context.Context) (*ar.Snapshot, error)
	Current() (*ar.Snapshot, error)
}

// ReportObserver receives one observation per report request.
type ReportObserver interface {
	ObserveReport(report, outcome string, elapsed time.Duration)
}

// Service coordinates report generation with the snapshot store and the cache layer.
type Service struct {
	snapshots SnapshotStore
	cache     *Cache
	logger    *slog.Logger
	observer  ReportObserver
	buckets   []FiscalBucket
	now       func() time.Time
	flight    singleflight.Group
}

// NewService wires a SnapshotStore with a Cache helper. cache may be nil.
func NewService(snapshots SnapshotStore, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		snapshots: snapshots,
		cache:     cache,
		logger:    logger,
		buckets:   DefaultFiscalBuckets(),
		now:       time.Now,
	}
}

// WithObserver attaches report metrics.
func (s *Service) WithObserver(observer ReportObserver) *Service {
	s.observer = observer
	return s
}

// WithClock overrides the clock used for the default as-of date.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Snapshot returns the current snapshot, loading it on first use.
func (s *Service) Snapshot(ctx context.Context) (*ar.Snapshot, error) {
	return s.snapshots.Load(ctx)
}

type fetched[T any] struct {
	value T
	hit   bool
}

// fetch serves a report from the cache or builds it from the snapshot.
// Concurrent identical requests share one build.
func fetch[T any](ctx context.Context, s *Service, report string, snap *ar.Snapshot, parts []string, build func(*ar.Snapshot) (T, error)) (T, error) {
	start := time.Now()
	var zero T

	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
		key = strings.Join(parts, ":")
	}

	shared := context.WithoutCancel(ctx)
	resultChan := s.flight.DoChan(key, func() (interface{}, error) {
		var out T
		var buildErr error
		hit, err := s.cache.FetchJSON(shared, key, &out, func(context.Context) (any, error) {
			value, err := build(snap)
			buildErr = err
			return value, err
		})
		if err != nil && buildErr == nil {
			s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
			out, err = build(snap)
			hit = false
		}
		if err != nil {
			return nil, err
		}
		return fetched[T]{value: out, hit: hit}, nil
	})

	select {
	case <-ctx.Done():
		s.observe(report, "error", start)
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			s.observe(report, "error", start)
			s.logger.Error("report failed", slog.String("report", report), slog.Any("error", res.Err))
			return zero, res.Err
		}
		out := res.Val.(fetched[T])
		outcome := "miss"
		if out.hit {
			outcome = "hit"
		}
		s.observe(report, outcome, start)
		return out.value, nil
	}
}

func (s *Service) observe(report, outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveReport(report, outcome, time.Since(start))
	}
}

func (s *Service) today() time.Time {
	return ar.DateOf(s.now())
}

// window fills a missing bound with the snapshot's invoice date bounds.
func window(snap *ar.Snapshot, from, to time.Time) (time.Time, time.Time, error) {
	minDate, maxDate, ok := snap.InvoiceDateBounds()
	if from.IsZero() && ok {
		from = minDate
	}
	if to.IsZero() && ok {
		to = maxDate
	}
	if !from.IsZero() && !to.IsZero() && ar.DateOf(from).After(ar.DateOf(to)) {
		return from, to, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return ar.DateOf(from), ar.DateOf(to), nil
}

// Receivables returns the aging and revenue-line report. A zero AsOf means
// today; zero From/To fall back to the snapshot's invoice date bounds.
func (s *Service) Receivables(ctx context.Context, filter ReceivablesFilter) (ReceivablesReport, error) {
	if filter.GroupBy == "" {
		filter.GroupBy = GroupGrandTotal
	}
	if !filter.GroupBy.Valid() {
		return ReceivablesReport{}, fmt.Errorf("%w: %q", ErrUnknownGroupBy, string(filter.GroupBy))
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return ReceivablesReport{}, err
	}
	if filter.From, filter.To, err = window(snap, filter.From, filter.To); err != nil {
		return ReceivablesReport{}, err
	}
	if filter.AsOf.IsZero() {
		filter.AsOf = s.today()
	}
	filter.AsOf = ar.DateOf(filter.AsOf)
	return fetch(ctx, s, ReportReceivables, snap, keyReceivables(snap.ID().String(), filter), func(snap *ar.Snapshot) (ReceivablesReport, error) {
		return BuildReceivables(snap, filter)
	})
}

// Banker returns opening and closing balances per customer.
func (s *Service) Banker(ctx context.Context, filter PeriodFilter) (BankerReport, error) {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return BankerReport{}, err
	}
	if filter.From, filter.To, err = window(snap, filter.From, filter.To); err != nil {
		return BankerReport{}, err
	}
	return fetch(ctx, s, ReportBanker, snap, keyBanker(snap.ID().String(), filter), func(snap *ar.Snapshot) (BankerReport, error) {
		return BuildBanker(snap, filter), nil
	})
}

// Ledger returns one customer's statement.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) (Ledger, error) {
	filter.Customer = strings.TrimSpace(filter.Customer)
	if filter.Customer == "" {
		return Ledger{}, ErrCustomerRequired
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return Ledger{}, err
	}
	if filter.From, filter.To, err = window(snap, filter.From, filter.To); err != nil {
		return Ledger{}, err
	}
	return fetch(ctx, s, ReportLedger, snap, keyLedger(snap.ID().String(), filter), func(snap *ar.Snapshot) (Ledger, error) {
		return BuildLedger(snap, filter), nil
	})
}

// Segments returns collections per revenue segment and fiscal bucket.
func (s *Service) Segments(ctx context.Context, filter SegmentFilter) (SegmentReport, error) {
	if filter.allCompanies() {
		filter.Company = AllCompanies
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return SegmentReport{}, err
	}
	return fetch(ctx, s, ReportSegments, snap, keySegments(snap.ID().String(), filter), func(snap *ar.Snapshot) (SegmentReport, error) {
		return BuildSegments(snap, filter, s.buckets), nil
	})
}

// Dashboard returns the headline receivables summary.
func (s *Service) Dashboard(ctx context.Context) (DashboardSummary, error) {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}
	return fetch(ctx, s, ReportDashboard, snap, keyDashboard(snap.ID().String()), func(snap *ar.Snapshot) (DashboardSummary, error) {
		return BuildDashboard(snap), nil
	})
}

// Options lists the filter choices for the current snapshot.
func (s *Service) Options(ctx context.Context) (Options, error) {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return Options{}, err
	}
	return BuildOptions(snap), nil
}

// ReloadResult describes a completed reload.
type ReloadResult struct {
	SnapshotID string    `json:"snapshot_id"`
	LoadedAt   time.Time `json:"loaded_at"`
	Invoices   int       `json:"invoices"`
	Payments   int       `json:"payments"`
	Changed    bool      `json:"changed"`
}

// Reload re-reads the record source. When the content changed the cache
// version is bumped so other processes pick up the new snapshot.
func (s *Service) Reload(ctx context.Context) (ReloadResult, error) {
	prev, _ := s.snapshots.Current()
	snap, err := s.snapshots.Reload(ctx)
	if err != nil {
		return ReloadResult{}, err
	}
	changed := prev == nil || prev.ID() != snap.ID()
	if changed {
		if ver, err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("cache bump failed", slog.Any("error", err))
		} else if ver > 0 {
			s.logger.Info("cache version bumped", slog.Int64("version", ver), slog.String("snapshot_id", snap.ID().String()))
		}
	}
	return reloadResult(snap, changed), nil
}

// ApplyBump re-reads the snapshot after another process announced a new cache
// version. It does not bump again. A version this service published itself
// is skipped and reported with reloaded == false.
func (s *Service) ApplyBump(ctx context.Context, version int64) (result ReloadResult, reloaded bool, err error) {
	if s.cache.PublishedHere(version) {
		return ReloadResult{}, false, nil
	}
	prev, _ := s.snapshots.Current()
	snap, err := s.snapshots.Reload(ctx)
	if err != nil {
		return ReloadResult{}, false, err
	}
	return reloadResult(snap, prev == nil || prev.ID() != snap.ID()), true, nil
}

func reloadResult(snap *ar.Snapshot, changed bool) ReloadResult {
	return ReloadResult{
		SnapshotID: snap.ID().String(),
		LoadedAt:   snap.LoadedAt(),
		Invoices:   len(snap.Invoices()),
		Payments:   len(snap.Payments()),
		Changed:    changed,
	}
}

// WarmupStats counts the cache entries prepared per report.
type WarmupStats map[string]int

// Warmup precomputes the default views of every report for the current
// snapshot: receivables for each grouping, banker over the full window,
// segments for every company and the dashboard.
func (s *Service) Warmup(ctx context.Context) (WarmupStats, error) {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(WarmupStats)
	for _, g := range GroupOptions {
		if _, err := s.Receivables(ctx, ReceivablesFilter{GroupBy: g}); err != nil {
			return stats, fmt.Errorf("warm receivables %s: %w", g, err)
		}
		stats[ReportReceivables]++
	}
	if _, err := s.Banker(ctx, PeriodFilter{}); err != nil {
		return stats, fmt.Errorf("warm banker: %w", err)
	}
	stats[ReportBanker]++
	for _, company := range append([]string{AllCompanies}, snap.Companies()...) {
		if _, err := s.Segments(ctx, SegmentFilter{Company: company}); err != nil {
			return stats, fmt.Errorf("warm segments %s: %w", company, err)
		}
		stats[ReportSegments]++
	}
	if _, err := s.Dashboard(ctx); err != nil {
		return stats, fmt.Errorf("warm dashboard: %w", err)
	}
	stats[ReportDashboard]++
	return stats, nil
}
