package backtest

import "math"

// sharpeEpsilon keeps the Sharpe ratio finite for a flat equity curve.
const sharpeEpsilon = 1e-10

func computeMetrics(r *Result, cfg Config) {
	r.FinalEquity = r.InitialCapital
	if n := len(r.EquityCurve); n > 0 {
		r.FinalEquity = r.EquityCurve[n-1].Equity
	}
	r.TotalReturn = TotalReturn(r.InitialCapital, r.FinalEquity)
	r.MaxDrawdown = MaxDrawdown(r.EquityCurve)
	r.SharpeRatio = SharpeRatio(r.EquityCurve, cfg.SharpeRiskFreeRate, cfg.PeriodsPerYear)
	r.WinRate = WinRate(r.Trades)
}

// TotalReturn is (final - initial) / initial.
func TotalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// MaxDrawdown is the minimum of (equity - running max) / running max.
// It is zero or negative.
func MaxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Returns computes period-over-period simple returns of the curve.
// A period starting from zero equity contributes a zero return.
func Returns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		out[i-1] = (curve[i].Equity - prev) / prev
	}
	return out
}

// SharpeRatio annualises the mean excess return over its population
// standard deviation. annualRiskFree is spread evenly over periodsPerYear.
func SharpeRatio(curve []EquityPoint, annualRiskFree float64, periodsPerYear int) float64 {
	returns := Returns(curve)
	if len(returns) == 0 {
		return 0
	}
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	rf := annualRiskFree / float64(periodsPerYear)

	var mean float64
	for _, r := range returns {
		mean += r - rf
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - rf - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return mean / (math.Sqrt(variance) + sharpeEpsilon) * math.Sqrt(float64(periodsPerYear))
}

// WinRate is the share of trades with positive PnL; zero without trades.
func WinRate(trades []Trade) float64 {
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	n := len(trades)
	if n < 1 {
		n = 1
	}
	return float64(wins) / float64(n)
}
