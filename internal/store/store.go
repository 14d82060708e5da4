// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"greeks-simulator/internal/backtest"
	"greeks-simulator/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Historical prices
	SaveCandles(ctx context.Context, ticker string, candles []models.Candle) error
	SavePrices(ctx context.Context, ticker string, samples []models.PriceSample) error
	GetCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error)
	GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error)
	ListTickers(ctx context.Context) ([]TickerSummary, error)

	// Portfolios
	SavePositions(ctx context.Context, portfolioID string, positions []models.Position) error
	GetPositions(ctx context.Context, portfolioID string) ([]models.Position, error)
	ListPortfolios(ctx context.Context) ([]string, error)

	// Backtest results
	SaveBacktestResult(ctx context.Context, cfg backtest.Config, result *backtest.Result) (int64, error)
	GetBacktestResult(ctx context.Context, id int64) (*BacktestRecord, error)
	ListBacktestResults(ctx context.Context, filter BacktestFilter) ([]BacktestRecord, error)

	// Lifecycle
	Close() error
}

// TickerSummary describes the stored price history of one ticker.
type TickerSummary struct {
	Ticker string    `json:"ticker"`
	Count  int       `json:"count"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// BacktestFilter represents filters for querying stored backtest runs.
type BacktestFilter struct {
	Ticker   string
	Strategy string
	Limit    int
}

// BacktestRecord is a persisted backtest run.
type BacktestRecord struct {
	ID        int64            `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Config    backtest.Config  `json:"config"`
	Result    *backtest.Result `json:"result"`
}
