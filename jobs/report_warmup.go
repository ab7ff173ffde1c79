package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/receivables/internal/analytics"
	jobmetrics "github.com/odyssey-erp/receivables/internal/jobs"
)

// ReportWarmer precomputes report caches. *analytics.Service satisfies it.
type ReportWarmer interface {
	Warmup(ctx context.Context) (analytics.WarmupStats, error)
}

// ReportWarmupJob pre-populates report caches for the current snapshot.
type ReportWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		Timeout: 5 * time.Minute,
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("trigger", triggerOrDefault(payload.Trigger)))
	logger.Info("starting report warmup")
	start := time.Now()

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	stats, err := j.Reports.Warmup(runCtx)
	for report, count := range stats {
		j.metrics().AddWarmed(report, count)
	}
	if err != nil {
		logger.Error("warm reports", slog.Any("error", err))
		return err
	}

	total := 0
	for _, count := range stats {
		total += count
	}
	logger.Info("completed report warmup", slog.Int("entries", total), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
