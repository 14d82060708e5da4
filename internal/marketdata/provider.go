// Package marketdata supplies historical price series to the backtester.
// Providers only materialise series; they never price anything.
package marketdata

import (
	"context"
	"sort"
	"time"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

// Provider returns the chronologically ordered price series of a ticker
// over [from, to]. A zero from or to leaves that side unbounded.
type Provider interface {
	GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error)

func (f ProviderFunc) GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
	return f(ctx, ticker, from, to)
}

// FromSeries serves parallel price and date slices. A length mismatch is
// reported on every fetch as ErrInvalidPriceSeries.
func FromSeries(prices []float64, dates []time.Time) Provider {
	return ProviderFunc(func(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
		samples, err := models.ZipSeries(prices, dates)
		if err != nil {
			return nil, err
		}
		return Static(samples).GetPriceSeries(ctx, ticker, from, to)
	})
}

// Static serves a fixed in-memory series regardless of ticker.
type Static []models.PriceSample

func (s Static) GetPriceSeries(_ context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
	out := FilterRange(s, from, to)
	if len(out) == 0 {
		return nil, apperrors.NewDataError("prices", ticker, "no samples in range", apperrors.ErrDataNotFound)
	}
	return out, nil
}

// FilterRange returns the samples whose date lies in [from, to].
func FilterRange(samples []models.PriceSample, from, to time.Time) []models.PriceSample {
	out := make([]models.PriceSample, 0, len(samples))
	for _, s := range samples {
		if !from.IsZero() && s.Date.Before(from) {
			continue
		}
		if !to.IsZero() && s.Date.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortByDate orders samples chronologically in place.
func SortByDate(samples []models.PriceSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Date.Before(samples[j].Date)
	})
}

// ValidateSeries checks that a series is non-empty, strictly chronological
// and has positive prices.
func ValidateSeries(samples []models.PriceSample) error {
	if len(samples) == 0 {
		return apperrors.NewValidationError("price_series", 0, "must not be empty", apperrors.ErrInvalidPriceSeries)
	}
	for i, s := range samples {
		if !(s.Price > 0) {
			return apperrors.NewValidationError("price_series", s.Price,
				"prices must be positive", apperrors.ErrInvalidPriceSeries)
		}
		if i > 0 && !s.Date.After(samples[i-1].Date) {
			return apperrors.NewValidationError("dates", s.Date.Format("2006-01-02"),
				"dates must be strictly increasing", apperrors.ErrInvalidPriceSeries)
		}
	}
	return nil
}
