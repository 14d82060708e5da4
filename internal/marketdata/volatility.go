package marketdata

import (
	"math"

	"greeks-simulator/internal/models"
)

// TradingDaysPerYear annualises daily volatility.
const TradingDaysPerYear = 252

// LogReturns returns ln(p[i]/p[i-1]) for consecutive samples.
func LogReturns(samples []models.PriceSample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].Price, samples[i].Price
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualised sample standard deviation of the
// log returns over the last lookback returns ending at index end
// (inclusive). ok is false when fewer than two returns are available.
func RealizedVolatility(samples []models.PriceSample, end, lookback int) (vol float64, ok bool) {
	if end >= len(samples) {
		end = len(samples) - 1
	}
	start := end - lookback
	if start < 0 {
		start = 0
	}
	returns := LogReturns(samples[start : end+1])
	if len(returns) < 2 {
		return 0, false
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	return std * math.Sqrt(TradingDaysPerYear), true
}
