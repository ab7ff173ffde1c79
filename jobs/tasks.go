package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSnapshotRefresh reloads the record snapshot and invalidates caches on change.
	TaskSnapshotRefresh = "receivables:snapshot_refresh"
	// TaskReportWarmup precomputes the default report views into the cache.
	TaskReportWarmup = "receivables:report_warmup"
)

// Trigger names recorded in task payloads.
const (
	TriggerCron     = "cron"
	TriggerManual   = "manual"
	TriggerRefresh  = "refresh"
	TriggerStartup  = "startup"
	maxTriggerBytes = 64
)

// SnapshotRefreshPayload describes why a refresh was requested.
type SnapshotRefreshPayload struct {
	Trigger string `json:"trigger"`
}

// ReportWarmupPayload describes why a warmup was requested.
type ReportWarmupPayload struct {
	Trigger string `json:"trigger"`
}

// NewSnapshotRefreshTask constructs a snapshot refresh task.
func NewSnapshotRefreshTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotRefreshPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotRefresh, data), nil
}

// NewReportWarmupTask constructs a report warmup task.
func NewReportWarmupTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportWarmupPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// decodePayload unmarshals a task payload. An empty payload decodes to the
// zero value; malformed payloads are wrapped with asynq.SkipRetry.
func decodePayload(t *asynq.Task, dst interface{ trigger() string }) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if len(dst.trigger()) > maxTriggerBytes {
		return fmt.Errorf("decode %s payload: %w: %w", t.Type(), errTriggerTooLong, asynq.SkipRetry)
	}
	return nil
}

var errTriggerTooLong = errors.New("trigger too long")

func (p *SnapshotRefreshPayload) trigger() string { return p.Trigger }
func (p *ReportWarmupPayload) trigger() string    { return p.Trigger }

func triggerOrDefault(trigger string) string {
	if trigger == "" {
		return TriggerManual
	}
	return trigger
}
