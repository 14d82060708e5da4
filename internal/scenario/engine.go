// Package scenario revalues an option under caller-supplied price and
// implied-volatility shocks, and tracks its value as time passes.
package scenario

import (
	"math"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/performance"
	"greeks-simulator/internal/pricing"
)

const (
	// DefaultDecayDays is the horizon of ThetaDecay when none is configured.
	DefaultDecayDays = 30
	// DefaultDaysForward is the configured time step of a scenario sweep.
	DefaultDaysForward = 1
)

// Request lists the shocks to apply. Shocks are fractions: -0.05 is -5%.
// DaysForward is used as given: the zero value revalues with no time decay,
// so callers wanting the usual one-day step set DefaultDaysForward.
type Request struct {
	PriceShocks []float64 `json:"price_shocks"`
	IVShocks    []float64 `json:"iv_shocks"`
	DaysForward int       `json:"days_forward"`
}

// Point is the outcome of one (price, iv) shock pair.
type Point struct {
	PriceShockPct     float64 `json:"price_shock"`
	IVShockPct        float64 `json:"iv_shock"`
	ShockedUnderlying float64 `json:"shocked_underlying"`
	ShockedIV         float64 `json:"shocked_iv"`
	NewPrice          float64 `json:"new_price"`
	NewDelta          float64 `json:"new_delta"`
	NewGamma          float64 `json:"new_gamma"`
	NewVega           float64 `json:"new_vega"`
	PnL               float64 `json:"pnl"`
	PnLPct            float64 `json:"pnl_pct"`
}

// Result holds the unshocked valuation and every scenario, price-shock major.
type Result struct {
	InitialPrice  float64       `json:"initial_price"`
	InitialGreeks models.Greeks `json:"initial_greeks"`
	Scenarios     []Point       `json:"scenarios"`
}

// Generate evaluates the full cross product of req's shock lists after
// moving time forward by req.DaysForward calendar days.
func Generate(m models.MarketState, o models.OptionSpec, req Request) (*Result, error) {
	if req.DaysForward < 0 {
		return nil, apperrors.NewValidationError("days_forward", req.DaysForward, "must be non-negative", apperrors.ErrInputValidation)
	}

	initial, err := pricing.PriceAndGreeks(m, o)
	if err != nil {
		return nil, err
	}

	decayed := math.Max(m.TimeToExpiry-float64(req.DaysForward)/pricing.DaysPerYear, pricing.MinTimeToExpiry)

	nIV := len(req.IVShocks)
	states := make([]models.MarketState, len(req.PriceShocks)*nIV)
	for i, ps := range req.PriceShocks {
		for j, vs := range req.IVShocks {
			shocked := m
			shocked.Spot = m.Spot * (1 + ps)
			shocked.Volatility = math.Max(m.Volatility*(1+vs), pricing.MinVolatility)
			shocked.TimeToExpiry = decayed
			if err := pricing.Validate(shocked, o); err != nil {
				return nil, err
			}
			states[i*nIV+j] = shocked
		}
	}

	points := make([]Point, len(states))
	performance.ParallelFor(len(states), func(k int) {
		s := states[k]
		g, _ := pricing.PriceAndGreeks(s, o)
		pnl := g.Price - initial.Price
		pnlPct := 0.0
		if initial.Price != 0 {
			pnlPct = pnl / initial.Price * 100
		}
		points[k] = Point{
			PriceShockPct:     req.PriceShocks[k/nIV] * 100,
			IVShockPct:        req.IVShocks[k%nIV] * 100,
			ShockedUnderlying: s.Spot,
			ShockedIV:         s.Volatility,
			NewPrice:          g.Price,
			NewDelta:          g.Delta,
			NewGamma:          g.Gamma,
			NewVega:           g.Vega,
			PnL:               pnl,
			PnLPct:            pnlPct,
		}
	})

	return &Result{
		InitialPrice:  initial.Price,
		InitialGreeks: initial,
		Scenarios:     points,
	}, nil
}

// DecayPoint is the valuation of the option after Day calendar days.
type DecayPoint struct {
	Day              int     `json:"day"`
	Price            float64 `json:"price"`
	Delta            float64 `json:"delta"`
	Gamma            float64 `json:"gamma"`
	Vega             float64 `json:"vega"`
	Theta            float64 `json:"theta"`
	TimeToExpiration float64 `json:"time_to_expiration"`
}

// ThetaDecay values the option at spot for each day in [0, days].
// Time to expiry shrinks by 1/365 per day and floors at MinTimeToExpiry.
func ThetaDecay(m models.MarketState, o models.OptionSpec, days int) ([]DecayPoint, error) {
	if days < 0 {
		return nil, apperrors.NewValidationError("days", days, "must be non-negative", apperrors.ErrInputValidation)
	}
	if err := pricing.Validate(m, o); err != nil {
		return nil, err
	}

	schedule := make([]DecayPoint, 0, days+1)
	for day := 0; day <= days; day++ {
		state := m
		state.TimeToExpiry = math.Max(m.TimeToExpiry-float64(day)/pricing.DaysPerYear, pricing.MinTimeToExpiry)
		g, err := pricing.PriceAndGreeks(state, o)
		if err != nil {
			return nil, err
		}
		schedule = append(schedule, DecayPoint{
			Day:              day,
			Price:            g.Price,
			Delta:            g.Delta,
			Gamma:            g.Gamma,
			Vega:             g.Vega,
			Theta:            g.Theta,
			TimeToExpiration: state.TimeToExpiry,
		})
	}
	return schedule, nil
}
