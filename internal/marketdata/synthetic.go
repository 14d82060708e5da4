package marketdata

import (
	"context"
	"math/rand"
	"time"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

// SyntheticConfig parameterises the random-walk generator.
type SyntheticConfig struct {
	StartPrice float64
	DailyDrift float64
	DailyVol   float64
	Seed       int64
}

// DefaultSyntheticConfig starts at 100 with N(0.0005, 0.02) daily returns.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		StartPrice: 100,
		DailyDrift: 0.0005,
		DailyVol:   0.02,
		Seed:       42,
	}
}

// SyntheticProvider generates one sample per calendar day in [from, to].
// The same seed and range always yield the same series.
type SyntheticProvider struct {
	cfg SyntheticConfig
}

// NewSyntheticProvider creates a generator with cfg.
func NewSyntheticProvider(cfg SyntheticConfig) *SyntheticProvider {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = DefaultSyntheticConfig().StartPrice
	}
	return &SyntheticProvider{cfg: cfg}
}

func (p *SyntheticProvider) GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
	if from.IsZero() || to.IsZero() {
		return nil, apperrors.NewValidationError("date_range", ticker, "synthetic series needs start and end dates", apperrors.ErrInputValidation)
	}
	if to.Before(from) {
		return nil, apperrors.NewDataError("prices", ticker, "empty date range", apperrors.ErrDataNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Generate(from, int(to.Sub(from).Hours()/24)+1), nil
}

// Generate returns n daily samples starting at start.
func (p *SyntheticProvider) Generate(start time.Time, n int) []models.PriceSample {
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	price := p.cfg.StartPrice
	out := make([]models.PriceSample, 0, n)
	for i := 0; i < n; i++ {
		price *= 1 + p.cfg.DailyDrift + p.cfg.DailyVol*rng.NormFloat64()
		if price <= 0 {
			price = 0.01
		}
		out = append(out, models.PriceSample{Date: start.AddDate(0, 0, i), Price: price})
	}
	return out
}

// Flat returns n daily samples that all equal price.
func Flat(start time.Time, n int, price float64) []models.PriceSample {
	out := make([]models.PriceSample, n)
	for i := range out {
		out[i] = models.PriceSample{Date: start.AddDate(0, 0, i), Price: price}
	}
	return out
}
