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

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotReloader re-reads the record source. *analytics.Service satisfies it.
type SnapshotReloader interface {
	Reload(ctx context.Context) (analytics.ReloadResult, error)
}

// Enqueuer submits follow-up tasks. *Client satisfies it.
type Enqueuer interface {
	EnqueueReportWarmup(ctx context.Context, trigger string) (*asynq.TaskInfo, error)
}

// SnapshotRefreshJob reloads the snapshot on a schedule. When the content
// changed it queues a report warmup.
type SnapshotRefreshJob struct {
	Snapshots SnapshotReloader
	Enqueuer  Enqueuer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewSnapshotRefreshJob wires dependencies for the refresh handler.
func NewSnapshotRefreshJob(snapshots SnapshotReloader, enqueuer Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{
		Snapshots: snapshots,
		Enqueuer:  enqueuer,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   2 * time.Minute,
	}
}

// Handle processes snapshot refresh tasks.
func (j *SnapshotRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Snapshots == nil {
		return errors.New("snapshot refresh: handler not configured")
	}
	var payload SnapshotRefreshPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskSnapshotRefresh)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("trigger", triggerOrDefault(payload.Trigger)))
	start := time.Now()

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	result, err := j.Snapshots.Reload(runCtx)
	if err != nil {
		logger.Error("reload snapshot", slog.Any("error", err))
		return err
	}
	j.metrics().SnapshotRefreshed(result.Changed)
	logger.Info("snapshot refreshed",
		slog.String("snapshot_id", result.SnapshotID),
		slog.Int("invoices", result.Invoices),
		slog.Int("payments", result.Payments),
		slog.Bool("changed", result.Changed),
		slog.Duration("duration", time.Since(start)))

	if !result.Changed || j.Enqueuer == nil {
		return nil
	}
	if _, err := j.Enqueuer.EnqueueReportWarmup(ctx, TriggerRefresh); err != nil {
		logger.Warn("enqueue warmup", slog.Any("error", err))
	}
	return nil
}

func (j *SnapshotRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSnapshotRefresh))
	}
	return slog.Default().With(slog.String("job", TaskSnapshotRefresh))
}

func (j *SnapshotRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
