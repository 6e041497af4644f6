package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/warewave/warewave/internal/jobs"
	"github.com/warewave/warewave/internal/stats"
)

// StatsRefreshJob keeps cached performance snapshots from going stale.
type StatsRefreshJob struct {
	Stats   *stats.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStatsRefreshJob wires dependencies for the snapshot refresh handler.
func NewStatsRefreshJob(statsSvc *stats.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsRefreshJob {
	return &StatsRefreshJob{Stats: statsSvc, Logger: logger, Metrics: metrics}
}

// Handle processes snapshot refresh tasks. With an operator in the payload
// it recomputes that window eagerly; otherwise it only bumps the cache
// version and lets the next read recompute.
func (j *StatsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stats == nil {
		return errors.New("stats refresh: handler not configured")
	}
	var payload StatsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStatsRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if payload.OperatorID == 0 {
		if err := j.Stats.Invalidate(ctx); err != nil {
			resultErr = err
			return err
		}
		j.logger().Info("stats cache invalidated")
		return nil
	}

	snap, err := j.Stats.Refresh(ctx, stats.Window{
		OperatorID: payload.OperatorID,
		Day:        payload.Day,
		WaveID:     payload.WaveID,
	})
	if err != nil {
		resultErr = err
		return err
	}
	j.logger().Info("stats snapshot refreshed",
		slog.Int64("operator_id", payload.OperatorID),
		slog.Int("completed_tasks", snap.CompletedTasks))
	return nil
}

func (j *StatsRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *StatsRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
