// Package pricing implements the Black-Scholes-Merton kernel for European
// options with a continuous dividend yield.
package pricing

import (
	"math"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

const (
	// MinTimeToExpiry is the floor applied to T (years) before any division.
	MinTimeToExpiry = 0.001
	// MinVolatility is the floor applied to sigma before use.
	MinVolatility = 0.01
	// DaysPerYear converts annual theta to a per-calendar-day figure.
	DaysPerYear = 365.0

	sqrt2Pi = 2.5066282746310002
)

// Calculate prices one option from its scalar inputs.
func Calculate(S, K, T, r, sigma float64, kind models.OptionKind, q float64) (models.Greeks, error) {
	return PriceAndGreeks(
		models.MarketState{Spot: S, Rate: r, Dividend: q, Volatility: sigma, TimeToExpiry: T},
		models.OptionSpec{Strike: K, Kind: kind},
	)
}

// PriceAndGreeks returns the Black-Scholes price and Greeks of o under m.
//
// Spot, strike and volatility must be positive; T is floored at
// MinTimeToExpiry and sigma at MinVolatility.
func PriceAndGreeks(m models.MarketState, o models.OptionSpec) (models.Greeks, error) {
	if err := Validate(m, o); err != nil {
		return models.Greeks{}, err
	}

	S, K, r, q := m.Spot, o.Strike, m.Rate, m.Dividend
	T := math.Max(m.TimeToExpiry, MinTimeToExpiry)
	sigma := math.Max(m.Volatility, MinVolatility)

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r-q+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	divDisc := math.Exp(-q * T)
	rateDisc := math.Exp(-r * T)
	pdf := normPDF(d1)

	g := models.Greeks{
		Gamma: divDisc * pdf / (S * sigma * sqrtT),
		Vega:  S * divDisc * pdf * sqrtT / 100,
	}

	decay := -S * divDisc * pdf * sigma / (2 * sqrtT)

	switch o.Kind {
	case models.Call:
		nd1, nd2 := normCDF(d1), normCDF(d2)
		g.Price = S*divDisc*nd1 - K*rateDisc*nd2
		g.Delta = divDisc * nd1
		g.Rho = K * T * rateDisc * nd2 / 100
		g.Theta = (decay - r*K*rateDisc*nd2 + q*S*divDisc*nd1) / DaysPerYear
	case models.Put:
		nmd1, nmd2 := normCDF(-d1), normCDF(-d2)
		g.Price = K*rateDisc*nmd2 - S*divDisc*nmd1
		g.Delta = divDisc * (normCDF(d1) - 1)
		g.Rho = -K * T * rateDisc * nmd2 / 100
		g.Theta = (decay + r*K*rateDisc*nmd2 - q*S*divDisc*nmd1) / DaysPerYear
	}

	return g, nil
}

// Validate checks the hard preconditions of the kernel.
func Validate(m models.MarketState, o models.OptionSpec) error {
	if err := o.Kind.Validate(); err != nil {
		return err
	}
	if !positive(m.Spot) {
		return apperrors.NewValidationError("underlying_price", m.Spot, "must be positive", apperrors.ErrInvalidMarketState)
	}
	if !positive(o.Strike) {
		return apperrors.NewValidationError("strike", o.Strike, "must be positive", apperrors.ErrInvalidMarketState)
	}
	if !positive(m.Volatility) {
		return apperrors.NewValidationError("volatility", m.Volatility, "must be positive", apperrors.ErrInvalidMarketState)
	}
	if !finite(m.Rate) {
		return apperrors.NewValidationError("risk_free_rate", m.Rate, "must be finite", apperrors.ErrInvalidMarketState)
	}
	if !finite(m.Dividend) || m.Dividend < 0 {
		return apperrors.NewValidationError("dividend_yield", m.Dividend, "must be non-negative", apperrors.ErrInvalidMarketState)
	}
	if math.IsNaN(m.TimeToExpiry) || math.IsInf(m.TimeToExpiry, 0) {
		return apperrors.NewValidationError("time_to_expiration", m.TimeToExpiry, "must be finite", apperrors.ErrInvalidMarketState)
	}
	return nil
}

// Intrinsic returns the exercise value of an option at spot S.
func Intrinsic(kind models.OptionKind, S, K float64) float64 {
	if kind == models.Put {
		return math.Max(K-S, 0)
	}
	return math.Max(S-K, 0)
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// normCDF is the standard normal cumulative distribution via the error function.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
