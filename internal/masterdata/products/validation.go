package products

import (
	"fmt"
	"strings"

	"github.com/warewave/warewave/internal/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("products: %w: product code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("products: %w: product name is required", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Unit) == "" {
		return fmt.Errorf("products: %w: unit of measure is required", shared.ErrValidation)
	}
	return nil
}
