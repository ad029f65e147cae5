package catalog

import (
	"fmt"
	"strings"

	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if p.CurrentPrice < 0 {
		return fmt.Errorf("%w: price cannot be negative", httpx.ErrValidation)
	}
	return nil
}
