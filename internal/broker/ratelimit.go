package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// Category is an operation class the terminal bridge rate-limits
// independently (spec.md §4.1's RateLimits).
type Category string

const (
	CategoryMarketData Category = "market_data"
	CategoryTrading    Category = "trading"
	CategoryStandard   Category = "standard"
)

// RateLimiter enforces a per-category requests-per-second ceiling.
type RateLimiter struct {
	limiters map[Category]*rate.Limiter
}

// NewRateLimiter builds a limiter from the configured RPS per category.
// A non-positive RPS disables limiting for that category (burst of 1 is
// still enforced to avoid a zero-rate limiter blocking forever).
func NewRateLimiter(marketDataRPS, tradingRPS, standardRPS float64) *RateLimiter {
	return &RateLimiter{
		limiters: map[Category]*rate.Limiter{
			CategoryMarketData: newCategoryLimiter(marketDataRPS),
			CategoryTrading:    newCategoryLimiter(tradingRPS),
			CategoryStandard:   newCategoryLimiter(standardRPS),
		},
	}
}

func newCategoryLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until a token for category is available or ctx is canceled.
func (r *RateLimiter) Wait(ctx context.Context, category Category) error {
	limiter, ok := r.limiters[category]
	if !ok {
		limiter = r.limiters[CategoryStandard]
	}
	return limiter.Wait(ctx)
}
