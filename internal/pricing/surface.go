package pricing

import (
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/performance"
)

// SurfaceConfig controls the shock ranges of a PnL surface.
type SurfaceConfig struct {
	UnderlyingRange [2]float64 `json:"underlying_range"`
	IVRange         [2]float64 `json:"iv_range"`
	Steps           int        `json:"steps"`
}

// DefaultSurfaceConfig returns ±20% underlying, ±30% IV and 25 steps.
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfig{
		UnderlyingRange: [2]float64{-0.20, 0.20},
		IVRange:         [2]float64{-0.30, 0.30},
		Steps:           25,
	}
}

// Surface is a PnL grid indexed [iv][underlying].
type Surface struct {
	UnderlyingPrices []float64   `json:"underlying_prices"`
	IVLevels         []float64   `json:"iv_levels"`
	PnL              [][]float64 `json:"pnl_surface"`
	InitialPrice     float64     `json:"initial_price"`
	InitialDelta     float64     `json:"initial_delta"`
}

// PnLSurface revalues o on every (iv, underlying) pair of the configured grid
// and reports the change against the unshocked price.
func PnLSurface(m models.MarketState, o models.OptionSpec, cfg SurfaceConfig) (*Surface, error) {
	if cfg.Steps < 1 {
		return nil, apperrors.NewValidationError("steps", cfg.Steps, "must be at least 1", apperrors.ErrInputValidation)
	}

	initial, err := PriceAndGreeks(m, o)
	if err != nil {
		return nil, err
	}

	priceMul := Linspace(1+cfg.UnderlyingRange[0], 1+cfg.UnderlyingRange[1], cfg.Steps)
	ivMul := Linspace(1+cfg.IVRange[0], 1+cfg.IVRange[1], cfg.Steps)

	surface := &Surface{
		UnderlyingPrices: make([]float64, len(priceMul)),
		IVLevels:         make([]float64, len(ivMul)),
		PnL:              make([][]float64, len(ivMul)),
		InitialPrice:     initial.Price,
		InitialDelta:     initial.Delta,
	}
	for j, mul := range priceMul {
		surface.UnderlyingPrices[j] = m.Spot * mul
	}
	for i, mul := range ivMul {
		surface.IVLevels[i] = m.Volatility * mul
		surface.PnL[i] = make([]float64, len(priceMul))
	}

	// Validate every shocked state up front so workers never fail.
	for _, s := range surface.UnderlyingPrices {
		for _, iv := range surface.IVLevels {
			shocked := m
			shocked.Spot, shocked.Volatility = s, iv
			if err := Validate(shocked, o); err != nil {
				return nil, err
			}
		}
	}

	cols := len(priceMul)
	performance.ParallelFor(len(ivMul)*cols, func(cell int) {
		i, j := cell/cols, cell%cols
		shocked := m
		shocked.Spot = surface.UnderlyingPrices[j]
		shocked.Volatility = surface.IVLevels[i]
		g, _ := PriceAndGreeks(shocked, o)
		surface.PnL[i][j] = g.Price - initial.Price
	})

	return surface, nil
}

// Linspace returns n evenly spaced values over [start, stop], both included.
// A single step yields start.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
