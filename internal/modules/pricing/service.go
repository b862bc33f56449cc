// README: Pricing service computes fare estimates from route distance.
package pricing

import (
	"kamuit/internal/types"
)

type Service struct {
	rate Rate
}

func NewService(rate Rate) *Service {
	if rate.Currency == "" {
		rate.Currency = DefaultRate.Currency
	}
	return &Service{rate: rate}
}

// Estimate returns floor(km * rate) in minor units. Negative distances price as zero.
func (s *Service) Estimate(distanceM int) types.Money {
	if distanceM <= 0 {
		return types.Money{Amount: 0, Currency: s.rate.Currency}
	}
	return types.Money{
		Amount:   int64(distanceM) * s.rate.PerKmCents / 1000,
		Currency: s.rate.Currency,
	}
}
