// Package portfolio aggregates per-position Greeks into portfolio totals and
// derives hedge ratios from them.
package portfolio

import (
	"fmt"

	"github.com/sourcegraph/conc/iter"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/pricing"
)

// PositionGreeks pairs a position with its quantity-scaled Greeks.
type PositionGreeks struct {
	Position models.Position `json:"position"`
	Greeks   models.Greeks   `json:"greeks"`
}

// Greeks holds portfolio-level totals.
type Greeks struct {
	TotalDelta    float64          `json:"total_delta"`
	TotalGamma    float64          `json:"total_gamma"`
	TotalVega     float64          `json:"total_vega"`
	TotalRho      float64          `json:"total_rho"`
	TotalTheta    float64          `json:"total_theta"`
	TotalValue    float64          `json:"total_value"`
	PositionCount int              `json:"position_count"`
	Positions     []PositionGreeks `json:"positions"`
}

// Total returns the aggregated value of the named Greek.
func (g Greeks) Total(name models.GreekName) float64 {
	switch name {
	case models.Delta:
		return g.TotalDelta
	case models.Gamma:
		return g.TotalGamma
	case models.Vega:
		return g.TotalVega
	case models.Rho:
		return g.TotalRho
	case models.Theta:
		return g.TotalTheta
	}
	return 0
}

// Aggregate values every position under its own market state and sums the
// quantity-scaled Greeks. Positions are priced concurrently; totals are
// accumulated in input order.
func Aggregate(positions []models.Position) (Greeks, error) {
	for i, p := range positions {
		if err := pricing.Validate(p.Market, p.Spec); err != nil {
			return Greeks{}, fmt.Errorf("position %d (%s): %w", i, p.Ticker, err)
		}
	}

	scaled, err := iter.MapErr(positions, func(p *models.Position) (PositionGreeks, error) {
		g, err := pricing.PriceAndGreeks(p.Market, p.Spec)
		if err != nil {
			return PositionGreeks{}, err
		}
		return PositionGreeks{Position: *p, Greeks: g.Scale(float64(p.Quantity))}, nil
	})
	if err != nil {
		return Greeks{}, err
	}

	total := Greeks{
		PositionCount: len(positions),
		Positions:     make([]PositionGreeks, 0, len(positions)),
	}
	for _, pg := range scaled {
		total.TotalDelta += pg.Greeks.Delta
		total.TotalGamma += pg.Greeks.Gamma
		total.TotalVega += pg.Greeks.Vega
		total.TotalRho += pg.Greeks.Rho
		total.TotalTheta += pg.Greeks.Theta
		total.TotalValue += pg.Greeks.Price
		total.Positions = append(total.Positions, pg)
	}
	return total, nil
}

// HedgeResult describes the underlying trade that neutralises one Greek.
type HedgeResult struct {
	TargetGreek       models.GreekName `json:"target_greek"`
	CurrentValue      float64          `json:"current_value"`
	HedgeSharesNeeded float64          `json:"hedge_shares_needed"`
	HedgeCostApprox   float64          `json:"hedge_cost_approx"`
}

// HedgeRatio returns the number of underlying shares that offsets the
// portfolio's exposure to target, and their cost at spot.
func HedgeRatio(g Greeks, target models.GreekName, spot float64) (HedgeResult, error) {
	target, err := models.ParseGreek(string(target))
	if err != nil {
		return HedgeResult{}, err
	}
	if !(spot > 0) {
		return HedgeResult{}, apperrors.NewValidationError("underlying_price", spot, "must be positive", apperrors.ErrInvalidMarketState)
	}

	value := g.Total(target)
	shares := -value
	return HedgeResult{
		TargetGreek:       target,
		CurrentValue:      value,
		HedgeSharesNeeded: shares,
		HedgeCostApprox:   shares * spot,
	}, nil
}

// HedgeAll computes HedgeRatio for every Greek.
func HedgeAll(g Greeks, spot float64) ([]HedgeResult, error) {
	out := make([]HedgeResult, 0, len(models.AllGreeks()))
	for _, name := range models.AllGreeks() {
		h, err := HedgeRatio(g, name, spot)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
