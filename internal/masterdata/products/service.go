package products

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

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("products: %w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Product, error) {
	return s.repo.GetByCode(ctx, shared.NormalizeCode(code))
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	product.Code = shared.NormalizeCode(product.Code)
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	product.IsActive = true
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return fmt.Errorf("products: %w: invalid product id", shared.ErrValidation)
	}
	product.Code = shared.NormalizeCode(product.Code)
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

// Deactivate soft-retires a product. Rows are never deleted: ledger entries
// and trace events keep referencing them.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("products: %w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Deactivate(ctx, id)
}
