package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warewave/warewave/internal/shared"
)

type memoryRepo struct {
	events []Event
	nextID int64
}

func (r *memoryRepo) Append(ctx context.Context, event Event) (int64, error) {
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, event)
	return event.ID, nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Event, error) {
	result := []Event{}
	for _, e := range r.events {
		if filter.ProductID != 0 && e.ProductID != filter.ProductID {
			continue
		}
		if filter.LotID != 0 && e.LotID != filter.LotID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func TestRecordAssignsEventID(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, shared.FixedClock{At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})

	event, err := svc.Record(context.Background(), RecordInput{
		ProductID: 1,
		LotID:     2,
		Kind:      EventExit,
		Quantity:  5,
		Actor:     shared.Actor{ID: 3},
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.EventID)
	require.Equal(t, int64(1), event.ID)
	require.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), event.OccurredAt)
}

func TestRecordValidation(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{ProductID: 1, Kind: "NOPE", Actor: shared.Actor{ID: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{Kind: EventEntry, Actor: shared.Actor{ID: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{ProductID: 1, Kind: EventEntry})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTimelineRequiresScope(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Timeline(ctx, Filter{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{ProductID: 1, LotID: 9, Kind: EventStateChange, Actor: shared.Actor{ID: 1}})
	require.NoError(t, err)
	_, err = svc.Record(ctx, RecordInput{ProductID: 1, LotID: 8, Kind: EventEntry, Actor: shared.Actor{ID: 1}})
	require.NoError(t, err)

	events, err := svc.Timeline(ctx, Filter{LotID: 9})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventStateChange, events[0].Kind)
}
