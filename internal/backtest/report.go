package backtest

import (
	"fmt"
	"sort"
	"strings"
)

// StrategyComparison summarises one strategy's result for ranking.
type StrategyComparison struct {
	Strategy    string  `json:"strategy"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	WinRate     float64 `json:"win_rate"`
	FinalEquity float64 `json:"final_equity"`
	TotalTrades int     `json:"total_trades"`
}

// CompareStrategies ranks results by Sharpe ratio, highest first. Ties
// are broken by name so the order is stable.
func CompareStrategies(results map[string]*Result) []StrategyComparison {
	comparisons := make([]StrategyComparison, 0, len(results))
	for name, r := range results {
		if r == nil {
			continue
		}
		comparisons = append(comparisons, StrategyComparison{
			Strategy:    name,
			TotalReturn: r.TotalReturn,
			MaxDrawdown: r.MaxDrawdown,
			SharpeRatio: r.SharpeRatio,
			WinRate:     r.WinRate,
			FinalEquity: r.FinalEquity,
			TotalTrades: len(r.Trades),
		})
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].SharpeRatio != comparisons[j].SharpeRatio {
			return comparisons[i].SharpeRatio > comparisons[j].SharpeRatio
		}
		return comparisons[i].Strategy < comparisons[j].Strategy
	})
	return comparisons
}

// EquityCurveASCII renders the equity curve as a width x height block chart.
func EquityCurveASCII(result *Result, width, height int) string {
	if result == nil || len(result.EquityCurve) == 0 {
		return "No data to display"
	}
	if width < 1 {
		width = 60
	}
	if height < 2 {
		height = 15
	}

	lo, hi := result.EquityCurve[0].Equity, result.EquityCurve[0].Equity
	for _, p := range result.EquityCurve {
		if p.Equity < lo {
			lo = p.Equity
		}
		if p.Equity > hi {
			hi = p.Equity
		}
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.05
	hi += span * 0.05
	span = hi - lo

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	n := len(result.EquityCurve)
	cols := width
	if n < cols {
		cols = n
	}
	for x := 0; x < cols; x++ {
		idx := x * n / cols
		y := int((result.EquityCurve[idx].Equity - lo) / span * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Equity Curve (%.2f - %.2f)\n", lo, hi)
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteString("│\n")
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}
