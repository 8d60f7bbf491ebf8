package rates

import (
	"math"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
)

// Service is the exchange-rate collaborator. Rate sourcing lives outside this
// service; implementations only answer lookups.
type Service interface {
	// GetRate returns how many COP one unit of currency is worth.
	GetRate(currency string) (float64, error)

	// ConvertCents converts an amount between two currencies, rounding to the
	// nearest cent.
	ConvertCents(amountCents int64, from, to string) (int64, error)
}

// TableService answers conversions from a fixed rate table keyed by currency,
// each value expressed in COP per unit. The table comes from configuration.
type TableService struct {
	copPerUnit map[string]float64
}

// NewTableService builds a TableService over the given rate table.
func NewTableService(copPerUnit map[string]float64) *TableService {
	return &TableService{copPerUnit: copPerUnit}
}

func (s *TableService) GetRate(currency string) (float64, error) {
	rate, ok := s.copPerUnit[currency]
	if !ok || rate <= 0 {
		return 0, domainerr.NewValidationError("no exchange rate configured for " + currency)
	}
	return rate, nil
}

func (s *TableService) ConvertCents(amountCents int64, from, to string) (int64, error) {
	if from == to {
		return amountCents, nil
	}
	fromRate, err := s.GetRate(from)
	if err != nil {
		return 0, err
	}
	toRate, err := s.GetRate(to)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(float64(amountCents) * fromRate / toRate)), nil
}
