package backtest

import (
	"fmt"
	"math"
	"time"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/pricing"
)

// Close reasons recorded on trades.
const (
	ReasonExpiration = "expiration"
	ReasonEndOfData  = "end_of_data"
)

// Volatility models.
const (
	VolConstant   = "constant"
	VolHistorical = "historical"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultVolLookback    = 20
	DefaultPeriodsPerYear = 252

	// DefaultSharpeRiskFreeRate is the annual rate NewConfig and the
	// configuration file subtract in the Sharpe ratio.
	DefaultSharpeRiskFreeRate = 0.02
)

// Config describes one backtest run.
type Config struct {
	Ticker         string    `json:"ticker"`
	Strike         float64   `json:"strike"`
	Expiration     time.Time `json:"expiration"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Strategy       Strategy  `json:"strategy"`
	InitialCapital float64   `json:"initial_capital"`
	RiskFreeRate   float64   `json:"risk_free_rate"`
	Volatility     float64   `json:"volatility"`

	VolatilityModel    string  `json:"volatility_model"`
	VolLookback        int     `json:"vol_lookback"`
	// SharpeRiskFreeRate is taken as given; a zero value measures raw
	// rather than excess returns.
	SharpeRiskFreeRate float64 `json:"sharpe_risk_free_rate"`
	PeriodsPerYear     int     `json:"periods_per_year"`
}

// NewConfig returns a run configuration carrying the package defaults.
// Callers fill in the contract, dates and market inputs.
func NewConfig(strategy Strategy, initialCapital float64) Config {
	return Config{
		Strategy:           strategy,
		InitialCapital:     initialCapital,
		VolatilityModel:    VolConstant,
		VolLookback:        DefaultVolLookback,
		SharpeRiskFreeRate: DefaultSharpeRiskFreeRate,
		PeriodsPerYear:     DefaultPeriodsPerYear,
	}
}

func (c Config) withDefaults() Config {
	if c.VolatilityModel == "" {
		c.VolatilityModel = VolConstant
	}
	if c.VolLookback <= 0 {
		c.VolLookback = DefaultVolLookback
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return c
}

// Validate checks the run parameters before any pricing happens.
func (c Config) Validate() error {
	if !(c.Strike > 0) || math.IsInf(c.Strike, 0) {
		return apperrors.NewValidationError("strike", c.Strike, "must be positive", apperrors.ErrInvalidMarketState)
	}
	if !(c.Volatility > 0) || math.IsInf(c.Volatility, 0) {
		return apperrors.NewValidationError("volatility", c.Volatility, "must be positive", apperrors.ErrInvalidMarketState)
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return apperrors.NewValidationError("risk_free_rate", c.RiskFreeRate, "must be finite", apperrors.ErrInvalidMarketState)
	}
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return apperrors.NewValidationError("initial_capital", c.InitialCapital, "must be positive", apperrors.ErrInputValidation)
	}
	if c.Expiration.IsZero() {
		return apperrors.NewValidationError("expiration", "", "is required", apperrors.ErrInputValidation)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return apperrors.NewValidationError("end_date", c.EndDate.Format("2006-01-02"), "must not precede start_date", apperrors.ErrInputValidation)
	}
	switch c.VolatilityModel {
	case "", VolConstant, VolHistorical:
	default:
		return apperrors.NewValidationError("volatility_model", c.VolatilityModel, "must be constant or historical", apperrors.ErrInputValidation)
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	for i, leg := range c.Strategy.Legs {
		if !(c.Strike+leg.StrikeOffset > 0) {
			return legError(i, "strike_offset", leg.StrikeOffset, "leg strike must be positive")
		}
	}
	return nil
}

// EquityPoint is one observation on the equity curve.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Spot   float64   `json:"spot"`
	Equity float64   `json:"equity"`
}

// LegFill records one leg's strike and per-unit value at entry and exit.
type LegFill struct {
	Kind       models.OptionKind `json:"kind"`
	Side       models.Side       `json:"side"`
	Strike     float64           `json:"strike"`
	Quantity   int               `json:"quantity"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  float64           `json:"exit_price"`
}

// Trade is one opened and closed strategy position.
// Values are signed: long legs add, short legs subtract.
type Trade struct {
	Strategy   string    `json:"strategy"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntrySpot  float64   `json:"entry_spot"`
	ExitSpot   float64   `json:"exit_spot"`
	EntryValue float64   `json:"entry_value"`
	ExitValue  float64   `json:"exit_value"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
	Legs       []LegFill `json:"legs"`
}

// Result holds the statistics and full history of a run.
// TotalReturn, MaxDrawdown and WinRate are fractions.
type Result struct {
	Ticker         string        `json:"ticker"`
	Strategy       string        `json:"strategy"`
	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	TotalReturn    float64       `json:"total_return"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	WinRate        float64       `json:"win_rate"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// step is the fold state threaded through the series. It is copied,
// never mutated in place.
type step struct {
	open     bool
	done     bool
	entry    Trade
	lastMark float64
	lastDate time.Time
	lastSpot float64
	lastLegs []float64
}

// Simulate runs cfg over samples. It is a pure function of its inputs.
func Simulate(cfg Config, samples []models.PriceSample) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	series := marketdata.FilterRange(samples, cfg.StartDate, cfg.EndDate)
	if err := marketdata.ValidateSeries(series); err != nil {
		return nil, err
	}
	if remainingYears(cfg.Expiration, series[0].Date) <= 0 {
		return nil, apperrors.NewValidationError("expiration", cfg.Expiration.Format("2006-01-02"),
			"must be after the first sample date", apperrors.ErrInputValidation)
	}

	result := &Result{
		Ticker:         cfg.Ticker,
		Strategy:       cfg.Strategy.Name,
		InitialCapital: cfg.InitialCapital,
		Trades:         make([]Trade, 0, 1),
		EquityCurve:    make([]EquityPoint, 0, len(series)),
	}

	var st step
	for i := range series {
		next, point, trade, err := advance(cfg, series, i, st)
		if err != nil {
			return nil, err
		}
		st = next
		result.EquityCurve = append(result.EquityCurve, point)
		if trade != nil {
			result.Trades = append(result.Trades, *trade)
		}
		if st.done {
			break
		}
	}

	if st.open && !st.done {
		t := closeTrade(st.entry, st.lastDate, st.lastSpot, st.lastMark, st.lastLegs, ReasonEndOfData)
		result.Trades = append(result.Trades, t)
	}

	computeMetrics(result, cfg)
	return result, nil
}

// advance consumes sample i and returns the next state, the equity point
// for that sample and the trade it closed, if any.
func advance(cfg Config, series []models.PriceSample, i int, st step) (step, EquityPoint, *Trade, error) {
	s := series[i]
	T := remainingYears(cfg.Expiration, s.Date)

	if T <= 0 {
		// open is guaranteed: the first sample always has T > 0.
		prices := make([]float64, len(cfg.Strategy.Legs))
		for j, leg := range cfg.Strategy.Legs {
			prices[j] = pricing.Intrinsic(leg.Kind, s.Price, cfg.Strike+leg.StrikeOffset)
		}
		value := signedValue(cfg.Strategy.Legs, prices)
		t := closeTrade(st.entry, s.Date, s.Price, value, prices, ReasonExpiration)
		st.open, st.done = false, true
		return st, EquityPoint{Date: s.Date, Spot: s.Price, Equity: cfg.InitialCapital + t.PnL}, &t, nil
	}

	sigma := volatilityAt(cfg, series, i)
	prices := make([]float64, len(cfg.Strategy.Legs))
	for j, leg := range cfg.Strategy.Legs {
		v := sigma
		if leg.Volatility > 0 {
			v = leg.Volatility
		}
		g, err := pricing.Calculate(s.Price, cfg.Strike+leg.StrikeOffset, T, cfg.RiskFreeRate, v, leg.Kind, 0)
		if err != nil {
			return st, EquityPoint{}, nil, fmt.Errorf("pricing leg %d on %s: %w", j, s.Date.Format("2006-01-02"), err)
		}
		prices[j] = g.Price
	}
	mark := signedValue(cfg.Strategy.Legs, prices)

	if !st.open {
		st.open = true
		st.entry = openTrade(cfg, s, mark, prices)
	}
	st.lastMark, st.lastDate, st.lastSpot, st.lastLegs = mark, s.Date, s.Price, prices

	return st, EquityPoint{Date: s.Date, Spot: s.Price, Equity: cfg.InitialCapital + (mark - st.entry.EntryValue)}, nil, nil
}

func openTrade(cfg Config, s models.PriceSample, value float64, prices []float64) Trade {
	fills := make([]LegFill, len(cfg.Strategy.Legs))
	for j, leg := range cfg.Strategy.Legs {
		fills[j] = LegFill{
			Kind:       leg.Kind,
			Side:       leg.Side,
			Strike:     cfg.Strike + leg.StrikeOffset,
			Quantity:   leg.Quantity,
			EntryPrice: prices[j],
		}
	}
	return Trade{
		Strategy:   cfg.Strategy.Name,
		EntryDate:  s.Date,
		EntrySpot:  s.Price,
		EntryValue: value,
		Legs:       fills,
	}
}

func closeTrade(t Trade, date time.Time, spot, value float64, prices []float64, reason string) Trade {
	legs := make([]LegFill, len(t.Legs))
	copy(legs, t.Legs)
	for j := range legs {
		legs[j].ExitPrice = prices[j]
	}
	t.Legs = legs
	t.ExitDate = date
	t.ExitSpot = spot
	t.ExitValue = value
	t.PnL = value - t.EntryValue
	t.Reason = reason
	return t
}

func signedValue(legs []models.Leg, prices []float64) float64 {
	var v float64
	for j, leg := range legs {
		v += leg.SignedQuantity() * prices[j]
	}
	return v
}

// remainingYears counts whole calendar days to expiration, clamped at zero.
func remainingYears(expiration, date time.Time) float64 {
	days := math.Floor(expiration.Sub(date).Hours() / 24)
	return math.Max(days/pricing.DaysPerYear, 0)
}

// volatilityAt returns the model volatility for sample i.
func volatilityAt(cfg Config, series []models.PriceSample, i int) float64 {
	if cfg.VolatilityModel != VolHistorical || i < cfg.VolLookback {
		return cfg.Volatility
	}
	vol, ok := marketdata.RealizedVolatility(series, i, cfg.VolLookback)
	if !ok {
		return cfg.Volatility
	}
	return math.Max(vol, pricing.MinVolatility)
}
