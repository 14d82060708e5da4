package models

import (
	"fmt"
	"strings"

	apperrors "greeks-simulator/internal/errors"
)

// OptionKind is the closed set of supported European option kinds.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// ParseOptionKind parses a kind name case-insensitively.
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", apperrors.NewValidationError("kind", s, "must be call or put", apperrors.ErrInvalidOption)
}

// Validate reports whether the kind is one of the known variants.
func (k OptionKind) Validate() error {
	switch k {
	case Call, Put:
		return nil
	}
	return apperrors.NewValidationError("kind", string(k), "must be call or put", apperrors.ErrInvalidOption)
}

func (k OptionKind) String() string {
	return string(k)
}

// MarketState is the market environment an option is valued in.
type MarketState struct {
	Spot         float64 `json:"underlying_price"`
	Rate         float64 `json:"risk_free_rate"`
	Dividend     float64 `json:"dividend_yield"`
	Volatility   float64 `json:"volatility"`
	TimeToExpiry float64 `json:"time_to_expiration"` // years
}

// OptionSpec describes the contract being valued.
type OptionSpec struct {
	Strike float64    `json:"strike"`
	Kind   OptionKind `json:"option_type"`
}

// Greeks holds the price and sensitivities of one option.
// Vega and rho are per 1 percentage point, theta per calendar day.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	Theta float64 `json:"theta"`
	Price float64 `json:"price"`
}

// Scale multiplies every field by qty.
func (g Greeks) Scale(qty float64) Greeks {
	return Greeks{
		Delta: g.Delta * qty,
		Gamma: g.Gamma * qty,
		Vega:  g.Vega * qty,
		Rho:   g.Rho * qty,
		Theta: g.Theta * qty,
		Price: g.Price * qty,
	}
}

// Value returns the sensitivity named by n.
func (g Greeks) Value(n GreekName) float64 {
	switch n {
	case Delta:
		return g.Delta
	case Gamma:
		return g.Gamma
	case Vega:
		return g.Vega
	case Rho:
		return g.Rho
	case Theta:
		return g.Theta
	}
	return 0
}

// GreekName enumerates the sensitivities that can be hedged.
type GreekName string

const (
	Delta GreekName = "delta"
	Gamma GreekName = "gamma"
	Vega  GreekName = "vega"
	Rho   GreekName = "rho"
	Theta GreekName = "theta"
)

// AllGreeks returns the Greek names in display order.
func AllGreeks() []GreekName {
	return []GreekName{Delta, Gamma, Vega, Rho, Theta}
}

// ParseGreek parses a Greek name case-insensitively.
func ParseGreek(s string) (GreekName, error) {
	name := GreekName(strings.ToLower(strings.TrimSpace(s)))
	for _, g := range AllGreeks() {
		if g == name {
			return g, nil
		}
	}
	return "", apperrors.NewValidationError("target_greek", s,
		fmt.Sprintf("must be one of %v", AllGreeks()), apperrors.ErrInvalidGreek)
}

// Position is a signed holding of one option with its own market state.
type Position struct {
	Ticker   string      `json:"ticker"`
	Spec     OptionSpec  `json:"spec"`
	Market   MarketState `json:"market"`
	Quantity int         `json:"quantity"`
}

// Leg is one component of a multi-leg strategy.
type Leg struct {
	Kind         OptionKind `json:"kind"`
	StrikeOffset float64    `json:"strike_offset"`
	Side         Side       `json:"side"`
	Quantity     int        `json:"quantity"`
	Volatility   float64    `json:"volatility,omitempty"` // 0 = strategy default
}

// SignedQuantity returns quantity with the side's sign applied.
func (l Leg) SignedQuantity() float64 {
	return l.Side.Sign() * float64(l.Quantity)
}
