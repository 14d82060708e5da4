package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/models"
)

// Engine loads price series from a provider and runs backtests over them.
type Engine struct {
	provider marketdata.Provider
	logger   zerolog.Logger
}

// NewEngine creates an engine reading from provider.
func NewEngine(provider marketdata.Provider, logger zerolog.Logger) *Engine {
	return &Engine{
		provider: provider,
		logger:   logging.WithOperation(logger, "backtest"),
	}
}

// Run fetches cfg's series for [StartDate, EndDate] and simulates it.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.withDefaults().Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	samples, err := e.load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return e.simulate(cfg, samples)
}

// Compare runs every strategy over the same series. Results are keyed by
// strategy name.
func (e *Engine) Compare(ctx context.Context, cfg Config, strategies []Strategy) (map[string]*Result, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("compare: no strategies given")
	}
	for _, s := range strategies {
		c := cfg
		c.Strategy = s
		if err := c.withDefaults().Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for %s: %w", s.Name, err)
		}
	}

	samples, err := e.load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	results, err := iter.MapErr(strategies, func(s *Strategy) (*Result, error) {
		c := cfg
		c.Strategy = *s
		return e.simulate(c, samples)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Result, len(results))
	for i, r := range results {
		out[strategies[i].Name] = r
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context, cfg Config) ([]models.PriceSample, error) {
	start := time.Now()
	samples, err := e.provider.GetPriceSeries(ctx, cfg.Ticker, cfg.StartDate, cfg.EndDate)
	logging.LogDataLoad(e.logger, fmt.Sprintf("%T", e.provider), cfg.Ticker, len(samples), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fetching prices for %s: %w", cfg.Ticker, err)
	}
	return samples, nil
}

func (e *Engine) simulate(cfg Config, samples []models.PriceSample) (*Result, error) {
	logger := logging.WithStrategy(logging.WithTicker(e.logger, cfg.Ticker), cfg.Strategy.Name)

	result, err := Simulate(cfg, samples)
	if err != nil {
		logger.Error().Err(err).Msg("Backtest failed")
		return nil, err
	}
	for _, t := range result.Trades {
		logging.LogTrade(logger, t.Strategy, t.Reason, t.EntryValue, t.ExitValue, t.PnL)
	}
	logging.LogBacktest(logger, cfg.Ticker, cfg.Strategy.Name, result.TotalReturn, result.SharpeRatio, result.MaxDrawdown, len(result.Trades))
	return result, nil
}
