package trace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warewave/warewave/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Append(ctx context.Context, event Event) (int64, error)
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Service records and queries genealogy events.
type Service struct {
	repo  RepositoryPort
	clock shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, clock: clock}
}

// RecordInput describes an event to append.
type RecordInput struct {
	ProductID      int64
	LotID          int64
	SerialID       int64
	Kind           EventKind
	OriginLocation int64
	DestLocation   int64
	Quantity       float64
	Actor          shared.Actor
	Payload        map[string]any
}

// Record appends one event.
func (s *Service) Record(ctx context.Context, input RecordInput) (Event, error) {
	event, err := Build(input, s.clock)
	if err != nil {
		return Event{}, err
	}
	id, err := s.repo.Append(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("trace: append event: %w", err)
	}
	event.ID = id
	return event, nil
}

// Timeline lists events matching the filter.
func (s *Service) Timeline(ctx context.Context, filter Filter) ([]Event, error) {
	if filter.ProductID == 0 && filter.LotID == 0 && filter.SerialID == 0 {
		return nil, fmt.Errorf("trace: %w: product, lot or serial scope required", shared.ErrValidation)
	}
	return s.repo.List(ctx, filter)
}

// Build validates input and assembles an Event ready for append. Callers
// recording events inside their own transactions use this with a TxRecorder.
func Build(input RecordInput, clock shared.Clock) (Event, error) {
	if !input.Kind.Valid() {
		return Event{}, ErrUnknownKind
	}
	if input.ProductID == 0 {
		return Event{}, fmt.Errorf("trace: %w: product required", shared.ErrValidation)
	}
	if !input.Actor.Valid() {
		return Event{}, fmt.Errorf("trace: %w: actor required", shared.ErrValidation)
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return Event{
		EventID:        uuid.NewString(),
		ProductID:      input.ProductID,
		LotID:          input.LotID,
		SerialID:       input.SerialID,
		Kind:           input.Kind,
		OriginLocation: input.OriginLocation,
		DestLocation:   input.DestLocation,
		Quantity:       input.Quantity,
		ActorID:        input.Actor.ID,
		OccurredAt:     clock.Now(),
		Payload:        input.Payload,
	}, nil
}
