package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/warewave/warewave/internal/jobs"
	"github.com/warewave/warewave/internal/lots"
	"github.com/warewave/warewave/internal/shared"
)

// schedulerActor attributes ledger and trace writes made by background jobs.
var schedulerActor = shared.Actor{ID: 1, Name: "scheduler"}

// LotSweeper covers the slice of the lot service the expiry sweep needs.
type LotSweeper interface {
	MarkExpired(ctx context.Context, actor shared.Actor) (int, error)
	ListExpiring(ctx context.Context, withinDays int) ([]lots.Lot, error)
}

// LotExpiryScanJob sweeps lots whose expiry date has passed and logs the
// ones about to follow.
type LotExpiryScanJob struct {
	Lots    LotSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	// WarnWithinDays widens the advance warning window. Zero keeps the
	// default of 7 days.
	WarnWithinDays int
}

// NewLotExpiryScanJob wires dependencies for the expiry sweep handler.
func NewLotExpiryScanJob(lotsSvc LotSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *LotExpiryScanJob {
	return &LotExpiryScanJob{Lots: lotsSvc, Logger: logger, Metrics: metrics}
}

// Handle processes expiry scan tasks. The sweep re-derives expiry state
// from lot dates every run, so a missed schedule heals on the next one.
func (j *LotExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Lots == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload LotExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLotExpiryScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	expired, err := j.Lots.MarkExpired(ctx, schedulerActor)
	if err != nil {
		resultErr = err
		return err
	}
	j.metrics().AddExpiredLots(expired)

	warnDays := j.WarnWithinDays
	if warnDays <= 0 {
		warnDays = 7
	}
	expiring, err := j.Lots.ListExpiring(ctx, warnDays)
	if err != nil {
		resultErr = err
		return err
	}

	j.logger().Info("lot expiry scan finished",
		slog.Time("scheduled_for", payload.ScheduledFor),
		slog.Int("marked_expired", expired),
		slog.Int("expiring_soon", len(expiring)))
	for _, lot := range expiring {
		// ListExpiring only returns lots with an expiry date set.
		j.logger().Warn("lot expiring soon",
			slog.Int64("lot_id", lot.ID),
			slog.String("code", lot.Code),
			slog.Time("expiry_date", *lot.ExpiryDate))
	}
	return nil
}

func (j *LotExpiryScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *LotExpiryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
