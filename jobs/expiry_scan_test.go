package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/lots"
	"github.com/warewave/warewave/internal/shared"
)

type stubSweeper struct {
	expired  int
	expiring []lots.Lot

	markedBy shared.Actor
	warnDays int
}

func (s *stubSweeper) MarkExpired(_ context.Context, actor shared.Actor) (int, error) {
	s.markedBy = actor
	return s.expired, nil
}

func (s *stubSweeper) ListExpiring(_ context.Context, withinDays int) ([]lots.Lot, error) {
	s.warnDays = withinDays
	return s.expiring, nil
}

func TestLotExpiryScanLogsExpiringLots(t *testing.T) {
	expiry := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{
		expired: 2,
		expiring: []lots.Lot{
			{ID: 7, Code: "LOT-7", ExpiryDate: &expiry},
		},
	}
	var buf bytes.Buffer
	job := NewLotExpiryScanJob(sweeper, slog.New(slog.NewTextHandler(&buf, nil)), nil)

	task, err := NewLotExpiryScanTask(time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, "scheduler", sweeper.markedBy.Name)
	require.Equal(t, 7, sweeper.warnDays)
	require.Contains(t, buf.String(), "lot expiring soon")
	require.Contains(t, buf.String(), "LOT-7")
	require.Contains(t, buf.String(), "2026-03-09")
}

func TestLotExpiryScanWidensWarnWindow(t *testing.T) {
	sweeper := &stubSweeper{}
	job := NewLotExpiryScanJob(sweeper, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	job.WarnWithinDays = 30

	task, err := NewLotExpiryScanTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 30, sweeper.warnDays)
}
