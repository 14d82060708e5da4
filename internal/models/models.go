// Package models provides domain models for option analytics and backtesting.
package models

import (
	"strings"
	"time"

	apperrors "greeks-simulator/internal/errors"
)

// Side is the direction of a strategy leg.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// ParseSide parses long/short (buy/sell accepted as aliases).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	}
	return "", apperrors.NewValidationError("side", s, "must be long or short", apperrors.ErrInvalidStrategySpec)
}

// PriceSample is one observation of an underlying's price.
type PriceSample struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// ZipSeries pairs parallel price and date slices into samples.
func ZipSeries(prices []float64, dates []time.Time) ([]PriceSample, error) {
	if len(prices) != len(dates) {
		return nil, apperrors.NewValidationError("price_series", len(prices),
			"length must match dates", apperrors.ErrInvalidPriceSeries)
	}
	out := make([]PriceSample, len(prices))
	for i := range prices {
		out[i] = PriceSample{Date: dates[i], Price: prices[i]}
	}
	return out, nil
}

// Candle represents OHLCV data for one trading day.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Sample returns the candle's close as a price sample.
func (c Candle) Sample() PriceSample {
	return PriceSample{Date: c.Timestamp, Price: c.Close}
}
