package locations

import (
	"context"
	"fmt"

	mdshared "github.com/warewave/warewave/internal/masterdata/shared"
	"github.com/warewave/warewave/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Location, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, fmt.Errorf("locations: %w: invalid location id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Location, error) {
	return s.repo.GetByCode(ctx, shared.NormalizeCode(code))
}

// GetMany resolves location coordinates in one round trip.
func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]Location, error) {
	if len(ids) == 0 {
		return map[int64]Location{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) Create(ctx context.Context, loc Location) (Location, error) {
	loc.Code = shared.NormalizeCode(loc.Code)
	loc.Zone = shared.NormalizeCode(loc.Zone)
	if err := s.validate(loc); err != nil {
		return Location{}, err
	}
	loc.IsActive = true
	return s.repo.Create(ctx, loc)
}

func (s *Service) Update(ctx context.Context, id int64, loc Location) error {
	if id <= 0 {
		return fmt.Errorf("locations: %w: invalid location id", shared.ErrValidation)
	}
	loc.Code = shared.NormalizeCode(loc.Code)
	loc.Zone = shared.NormalizeCode(loc.Zone)
	if err := s.validate(loc); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, loc)
}

// Deactivate soft-retires a location; historic routes keep referencing it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("locations: %w: invalid location id", shared.ErrValidation)
	}
	return s.repo.Deactivate(ctx, id)
}
