package locations

import (
	"fmt"
	"strings"

	"github.com/warewave/warewave/internal/shared"
)

func (s *Service) validate(l Location) error {
	if strings.TrimSpace(l.Code) == "" {
		return fmt.Errorf("locations: %w: location code is required", shared.ErrValidation)
	}
	if l.X < 0 || l.Y < 0 {
		return fmt.Errorf("locations: %w: coordinates must be non-negative", shared.ErrValidation)
	}
	if l.Capacity < 0 {
		return fmt.Errorf("locations: %w: capacity must be non-negative", shared.ErrValidation)
	}
	return nil
}
