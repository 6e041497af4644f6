package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLotExpiryScan marks overdue lots EXPIRED.
	TaskLotExpiryScan = "lots:expiry_scan"
	// TaskStatsRefresh invalidates cached performance snapshots.
	TaskStatsRefresh = "stats:refresh"
)

// LotExpiryScanPayload carries scheduling metadata for the expiry sweep.
type LotExpiryScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLotExpiryScanTask constructs an Asynq task for the expiry sweep.
func NewLotExpiryScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LotExpiryScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// StatsRefreshPayload optionally narrows the refresh to one operator day.
// A zero OperatorID invalidates every cached snapshot instead.
type StatsRefreshPayload struct {
	OperatorID int64     `json:"operator_id,omitempty"`
	Day        time.Time `json:"day,omitempty"`
	WaveID     int64     `json:"wave_id,omitempty"`
}

// NewStatsRefreshTask constructs an Asynq task for snapshot refresh.
func NewStatsRefreshTask(payload StatsRefreshPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsRefresh, body, asynq.Queue(QueueDefault)), nil
}
