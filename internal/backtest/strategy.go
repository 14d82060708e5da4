// Package backtest replays multi-leg option strategies over a historical
// price series and reports return and risk statistics.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

// DefaultWidth is the strike distance used by the named spread builders.
const DefaultWidth = 5.0

// Strategy is an ordered, non-empty set of legs sharing one base strike.
type Strategy struct {
	Name string       `json:"name"`
	Legs []models.Leg `json:"legs"`
}

// Validate checks the leg list.
func (s Strategy) Validate() error {
	if len(s.Legs) == 0 {
		return apperrors.NewValidationError("legs", s.Name, "strategy needs at least one leg", apperrors.ErrInvalidStrategySpec)
	}
	for i, leg := range s.Legs {
		if leg.Kind != models.Call && leg.Kind != models.Put {
			return legError(i, "kind", leg.Kind, "must be call or put")
		}
		if leg.Side != models.Long && leg.Side != models.Short {
			return legError(i, "side", leg.Side, "must be long or short")
		}
		if leg.Quantity <= 0 {
			return legError(i, "quantity", leg.Quantity, "must be positive")
		}
		if math.IsNaN(leg.StrikeOffset) || math.IsInf(leg.StrikeOffset, 0) {
			return legError(i, "strike_offset", leg.StrikeOffset, "must be finite")
		}
		if leg.Volatility < 0 || math.IsNaN(leg.Volatility) || math.IsInf(leg.Volatility, 0) {
			return legError(i, "volatility", leg.Volatility, "must be a non-negative number")
		}
	}
	return nil
}

func legError(i int, field string, value interface{}, msg string) error {
	return apperrors.NewValidationError(fmt.Sprintf("legs[%d].%s", i, field), value, msg, apperrors.ErrInvalidStrategySpec)
}

// Describe renders the legs as e.g. "+1 call K+0, -1 call K+5".
func (s Strategy) Describe() string {
	parts := make([]string, len(s.Legs))
	for i, leg := range s.Legs {
		parts[i] = fmt.Sprintf("%+d %s K%+g", int(leg.SignedQuantity()), leg.Kind, leg.StrikeOffset)
	}
	return strings.Join(parts, ", ")
}

func leg(kind models.OptionKind, side models.Side, offset float64, qty int) models.Leg {
	return models.Leg{Kind: kind, Side: side, StrikeOffset: offset, Quantity: qty}
}

type builder func(w float64) []models.Leg

var builders = map[string]builder{
	"call": func(float64) []models.Leg {
		return []models.Leg{leg(models.Call, models.Long, 0, 1)}
	},
	"put": func(float64) []models.Leg {
		return []models.Leg{leg(models.Put, models.Long, 0, 1)}
	},
	"short_call": func(float64) []models.Leg {
		return []models.Leg{leg(models.Call, models.Short, 0, 1)}
	},
	"short_put": func(float64) []models.Leg {
		return []models.Leg{leg(models.Put, models.Short, 0, 1)}
	},
	// bull call spread
	"call_spread": func(w float64) []models.Leg {
		return []models.Leg{
			leg(models.Call, models.Long, 0, 1),
			leg(models.Call, models.Short, w, 1),
		}
	},
	// bear put spread
	"put_spread": func(w float64) []models.Leg {
		return []models.Leg{
			leg(models.Put, models.Long, 0, 1),
			leg(models.Put, models.Short, -w, 1),
		}
	},
	"straddle": func(float64) []models.Leg {
		return []models.Leg{
			leg(models.Call, models.Long, 0, 1),
			leg(models.Put, models.Long, 0, 1),
		}
	},
	"strangle": func(w float64) []models.Leg {
		return []models.Leg{
			leg(models.Call, models.Long, w, 1),
			leg(models.Put, models.Long, -w, 1),
		}
	},
	"iron_condor": func(w float64) []models.Leg {
		return []models.Leg{
			leg(models.Put, models.Long, -2*w, 1),
			leg(models.Put, models.Short, -w, 1),
			leg(models.Call, models.Short, w, 1),
			leg(models.Call, models.Long, 2*w, 1),
		}
	},
	"butterfly": func(w float64) []models.Leg {
		return []models.Leg{
			leg(models.Call, models.Long, -w, 1),
			leg(models.Call, models.Short, 0, 2),
			leg(models.Call, models.Long, w, 1),
		}
	},
}

// StrategyNames lists the named strategies in alphabetical order.
func StrategyNames() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamedStrategy builds a named strategy. width is the distance between
// strikes for spreads; non-positive width selects DefaultWidth.
func NamedStrategy(name string, width float64) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	b, ok := builders[key]
	if !ok {
		return Strategy{}, apperrors.NewValidationError("strategy", name,
			fmt.Sprintf("must be one of %s", strings.Join(StrategyNames(), ", ")), apperrors.ErrInvalidStrategySpec)
	}
	if !(width > 0) || math.IsInf(width, 0) {
		width = DefaultWidth
	}
	return Strategy{Name: key, Legs: b(width)}, nil
}

// ParseLeg parses "side:kind:offset[:qty[:vol]]", e.g. "short:call:5:1".
func ParseLeg(s string) (models.Leg, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 5 {
		return models.Leg{}, apperrors.NewValidationError("leg", s, "expected side:kind:offset[:qty[:vol]]", apperrors.ErrInvalidStrategySpec)
	}
	side, err := models.ParseSide(parts[0])
	if err != nil {
		return models.Leg{}, err
	}
	kind, err := models.ParseOptionKind(parts[1])
	if err != nil {
		return models.Leg{}, apperrors.NewValidationError("leg", s, "kind must be call or put", apperrors.ErrInvalidStrategySpec)
	}
	l := models.Leg{Kind: kind, Side: side, Quantity: 1}
	if l.StrikeOffset, err = parseLegFloat(parts[2]); err != nil {
		return models.Leg{}, apperrors.NewValidationError("leg", s, "offset must be a number", apperrors.ErrInvalidStrategySpec)
	}
	if len(parts) > 3 {
		if l.Quantity, err = strconv.Atoi(strings.TrimSpace(parts[3])); err != nil {
			return models.Leg{}, apperrors.NewValidationError("leg", s, "quantity must be an integer", apperrors.ErrInvalidStrategySpec)
		}
	}
	if len(parts) > 4 {
		if l.Volatility, err = parseLegFloat(parts[4]); err != nil {
			return models.Leg{}, apperrors.NewValidationError("leg", s, "volatility must be a number", apperrors.ErrInvalidStrategySpec)
		}
	}
	return l, nil
}

// parseLegFloat accepts a whole finite number and nothing else.
func parseLegFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return v, nil
}

// CustomStrategy builds a strategy from ParseLeg expressions.
func CustomStrategy(name string, exprs []string) (Strategy, error) {
	s := Strategy{Name: name}
	for _, e := range exprs {
		l, err := ParseLeg(e)
		if err != nil {
			return Strategy{}, err
		}
		s.Legs = append(s.Legs, l)
	}
	if s.Name == "" {
		s.Name = "custom"
	}
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}
