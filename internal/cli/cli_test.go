package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"greeks-simulator/internal/backtest"
	"greeks-simulator/internal/config"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/pricing"
	"greeks-simulator/internal/scenario"
	"greeks-simulator/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.Default(t.TempDir())
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(cfg, zerolog.Nop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func executeJSON(t *testing.T, cfg *config.Config, target interface{}, args ...string) {
	t.Helper()
	out, err := execute(t, cfg, append(args, "--json")...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	if err := json.Unmarshal([]byte(out), target); err != nil {
		t.Fatalf("%v: decoding output: %v\n%s", args, err, out)
	}
}

func TestVersionCmd(t *testing.T) {
	var v map[string]string
	executeJSON(t, testConfig(t), &v, "version")
	if v["version"] != Version {
		t.Errorf("version = %q", v["version"])
	}

	out, err := execute(t, testConfig(t), "version")
	if err != nil || !strings.Contains(out, "Greeks Simulator v"+Version) {
		t.Errorf("plain version output %q, %v", out, err)
	}
}

func TestConfigCmd(t *testing.T) {
	cfg := testConfig(t)
	var path map[string]string
	executeJSON(t, cfg, &path, "config", "path")
	if path["path"] != cfg.Path() {
		t.Errorf("path = %q", path["path"])
	}

	out, err := execute(t, cfg, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Pricing", "Backtest", "synthetic", "10,000.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}

	cfg.Backtest.VolatilityModel = "garch"
	out, err = execute(t, cfg, "config", "validate")
	if ExitCode(err) != ExitConfig {
		t.Errorf("invalid config should exit %d, got %v", ExitConfig, err)
	}
	// The caller prints the returned error; the command itself stays quiet.
	if out != "" {
		t.Errorf("validate printed %q alongside its error", out)
	}
	if err == nil || !strings.Contains(err.Error(), "volatility_model") {
		t.Errorf("error should name the bad field: %v", err)
	}
}

func TestCommandLoggerFromContext(t *testing.T) {
	var logs bytes.Buffer
	cmd := NewRootCmd(testConfig(t), zerolog.New(&logs).Level(zerolog.InfoLevel))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"portfolio", "hedge", "--file", writePositions(t, coveredPositions), "--greek", "delta"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"event":"hedge"`, `"greek":"delta"`, `"command":"greeks portfolio hedge"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log missing %s:\n%s", want, logs.String())
		}
	}
}

func TestCalcGreeks(t *testing.T) {
	var g struct {
		Price float64 `json:"price"`
		Delta float64 `json:"delta"`
	}
	executeJSON(t, testConfig(t), &g, "calc", "greeks",
		"--spot", "100", "--strike", "100", "--tte", "1", "--vol", "0.2", "--rate", "0.05")
	if math.Abs(g.Price-10.4506) > 1e-3 {
		t.Errorf("price = %v, want 10.4506", g.Price)
	}
	if math.Abs(g.Delta-0.6368) > 1e-3 {
		t.Errorf("delta = %v, want 0.6368", g.Delta)
	}

	out, err := execute(t, testConfig(t), "calc", "greeks", "--spot", "100", "--strike", "95", "--days", "30", "--type", "put")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "put 95") || !strings.Contains(out, "theta:") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCalcGreeks_InvalidInput(t *testing.T) {
	tests := map[string][]string{
		"negative spot": {"--spot", "-1", "--strike", "100"},
		"zero vol":      {"--spot", "100", "--strike", "100", "--vol", "0"},
		"bad type":      {"--spot", "100", "--strike", "100", "--type", "straddle"},
	}
	for name, flags := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, testConfig(t), append([]string{"calc", "greeks"}, flags...)...)
			if ExitCode(err) != ExitValidation {
				t.Errorf("expected validation exit, got %v", err)
			}
		})
	}
}

func TestCalcSurface(t *testing.T) {
	var s pricing.Surface
	executeJSON(t, testConfig(t), &s, "calc", "surface", "--spot", "100", "--strike", "100", "--steps", "3")
	if len(s.UnderlyingPrices) != 3 || len(s.IVLevels) != 3 || len(s.PnL) != 3 || len(s.PnL[0]) != 3 {
		t.Fatalf("unexpected grid shape: %+v", s)
	}
	// The middle of a symmetric grid is the unshocked point.
	if math.Abs(s.PnL[1][1]) > 1e-9 {
		t.Errorf("centre PnL = %v, want 0", s.PnL[1][1])
	}
}

func TestCalcScenarios(t *testing.T) {
	var r scenario.Result
	executeJSON(t, testConfig(t), &r, "calc", "scenarios", "--spot", "100", "--strike", "100",
		"--price-shocks=-0.1,0.1", "--iv-shocks=0,0.2", "--days-forward", "0")
	if len(r.Scenarios) != 4 {
		t.Fatalf("expected 4 scenarios, got %d", len(r.Scenarios))
	}
	if r.Scenarios[0].PriceShockPct != -10 || r.Scenarios[1].IVShockPct != 20 {
		t.Errorf("scenarios not in price-major order: %+v", r.Scenarios[:2])
	}
	if r.Scenarios[2].PnL <= 0 {
		t.Errorf("call should gain on +10%% spot, got %v", r.Scenarios[2].PnL)
	}

	if _, err := execute(t, testConfig(t), "calc", "scenarios", "--spot", "100", "--strike", "100", "--price-shocks", "a,b"); err == nil {
		t.Error("expected error for non-numeric shocks")
	}
}

func TestCalcThetaDecay(t *testing.T) {
	var schedule []scenario.DecayPoint
	executeJSON(t, testConfig(t), &schedule, "calc", "theta-decay", "--spot", "100", "--strike", "100", "--days", "30", "--horizon", "5")
	if len(schedule) != 6 {
		t.Fatalf("expected 6 points, got %d", len(schedule))
	}
	if schedule[5].Price >= schedule[0].Price {
		t.Errorf("option should lose value over time: %v -> %v", schedule[0].Price, schedule[5].Price)
	}
}

func writePositions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const coveredPositions = `[
  {"ticker": "SPY", "strike": 100, "option_type": "call", "quantity": 2,
   "underlying_price": 100, "risk_free_rate": 0.05, "volatility": 0.2, "time_to_expiration": 0.5},
  {"ticker": "SPY", "strike": 110, "option_type": "put", "quantity": -1,
   "underlying_price": 100, "risk_free_rate": 0.05, "volatility": 0.25, "time_to_expiration": 0.5}
]`

func TestPortfolioGreeksAndHedge(t *testing.T) {
	cfg := testConfig(t)
	path := writePositions(t, coveredPositions)

	var g struct {
		TotalDelta    float64 `json:"total_delta"`
		PositionCount int     `json:"position_count"`
	}
	executeJSON(t, cfg, &g, "portfolio", "greeks", "--file", path)
	if g.PositionCount != 2 || g.TotalDelta <= 0 {
		t.Fatalf("unexpected aggregate: %+v", g)
	}

	var hedges []struct {
		TargetGreek       string  `json:"target_greek"`
		CurrentValue      float64 `json:"current_value"`
		HedgeSharesNeeded float64 `json:"hedge_shares_needed"`
		HedgeCostApprox   float64 `json:"hedge_cost_approx"`
	}
	executeJSON(t, cfg, &hedges, "portfolio", "hedge", "--file", path, "--greek", "Delta")
	if len(hedges) != 1 || hedges[0].TargetGreek != "delta" {
		t.Fatalf("unexpected hedges: %+v", hedges)
	}
	h := hedges[0]
	if math.Abs(h.HedgeSharesNeeded+g.TotalDelta) > 1e-9 || math.Abs(h.HedgeCostApprox-h.HedgeSharesNeeded*100) > 1e-9 {
		t.Errorf("hedge does not offset delta: %+v (delta %v)", h, g.TotalDelta)
	}

	executeJSON(t, cfg, &hedges, "portfolio", "hedge", "--file", path)
	if len(hedges) != 5 {
		t.Errorf("expected a hedge per Greek, got %d", len(hedges))
	}

	if _, err := execute(t, cfg, "portfolio", "hedge", "--file", path, "--greek", "charm"); ExitCode(err) != ExitValidation {
		t.Errorf("unknown greek should be a validation error, got %v", err)
	}
}

func TestReadPositions_QuantityDefault(t *testing.T) {
	positions, err := ReadPositions(strings.NewReader(`[
  {"ticker": "SPY", "strike": 100, "option_type": "call",
   "underlying_price": 100, "volatility": 0.2, "time_to_expiration": 0.5},
  {"ticker": "SPY", "strike": 100, "option_type": "put", "quantity": 0,
   "underlying_price": 100, "volatility": 0.2, "time_to_expiration": 0.5}
]`))
	if err != nil {
		t.Fatal(err)
	}
	if positions[0].Quantity != 1 {
		t.Errorf("missing quantity should mean one contract, got %d", positions[0].Quantity)
	}
	if positions[1].Quantity != 0 {
		t.Errorf("explicit zero quantity should be kept, got %d", positions[1].Quantity)
	}
}

func TestPortfolioInputErrors(t *testing.T) {
	cfg := testConfig(t)
	if _, err := execute(t, cfg, "portfolio", "greeks"); ExitCode(err) != ExitValidation {
		t.Errorf("missing source: %v", err)
	}
	if _, err := execute(t, cfg, "portfolio", "greeks", "--file", filepath.Join(t.TempDir(), "none.json")); ExitCode(err) != ExitNotFound {
		t.Errorf("missing file: %v", err)
	}
	bad := writePositions(t, `[{"ticker": "SPY", "strike": 100, "option_type": "call", "quantity": 1,
		"underlying_price": 100, "volatility": -0.2, "time_to_expiration": 0.5}]`)
	if _, err := execute(t, cfg, "portfolio", "greeks", "--file", bad); !errors.Is(err, apperrors.ErrInvalidMarketState) {
		t.Errorf("negative vol: %v", err)
	}
}

func TestPortfolioSaveAndShow(t *testing.T) {
	cfg := testConfig(t)
	path := writePositions(t, coveredPositions)

	if _, err := execute(t, cfg, "portfolio", "save", "income", "--file", path); err != nil {
		t.Fatal(err)
	}

	var ids []string
	executeJSON(t, cfg, &ids, "portfolio", "show")
	if len(ids) != 1 || ids[0] != "income" {
		t.Errorf("ids = %v", ids)
	}

	var fromFile, fromStore struct {
		TotalDelta float64 `json:"total_delta"`
		TotalVega  float64 `json:"total_vega"`
	}
	executeJSON(t, cfg, &fromFile, "portfolio", "greeks", "--file", path)
	executeJSON(t, cfg, &fromStore, "portfolio", "greeks", "--id", "income")
	if math.Abs(fromFile.TotalDelta-fromStore.TotalDelta) > 1e-9 || math.Abs(fromFile.TotalVega-fromStore.TotalVega) > 1e-9 {
		t.Errorf("stored portfolio differs: %+v vs %+v", fromStore, fromFile)
	}

	if _, err := execute(t, cfg, "portfolio", "show", "missing"); ExitCode(err) != ExitNotFound {
		t.Errorf("missing portfolio: %v", err)
	}
}

var backtestArgs = []string{"--strike", "100", "--start", "2024-01-01", "--expiration", "2024-02-01"}

func TestBacktestRun_Synthetic(t *testing.T) {
	cfg := testConfig(t)
	var r backtest.Result
	executeJSON(t, cfg, &r, append([]string{"backtest", "run", "--strategy", "straddle"}, backtestArgs...)...)

	if r.Strategy != "straddle" || r.Ticker != "SYNTH" {
		t.Errorf("unexpected result header: %s on %s", r.Strategy, r.Ticker)
	}
	if len(r.EquityCurve) != 32 {
		t.Errorf("expected 32 daily points, got %d", len(r.EquityCurve))
	}
	if len(r.Trades) != 1 || r.Trades[0].Reason != backtest.ReasonExpiration {
		t.Fatalf("expected one trade closed at expiration, got %+v", r.Trades)
	}
	if math.Abs(r.FinalEquity-(r.InitialCapital+r.Trades[0].PnL)) > 1e-6 {
		t.Errorf("final equity %v != capital + pnl %v", r.FinalEquity, r.InitialCapital+r.Trades[0].PnL)
	}
}

func TestBacktestRun_CustomLegsSaveAndExport(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	tradesCSV := filepath.Join(dir, "trades.csv")
	equityCSV := filepath.Join(dir, "equity.csv")

	args := append([]string{"backtest", "run", "--leg", "short:put:-5", "--leg", "long:put:-10",
		"--save", "--trades-csv", tradesCSV, "--equity-csv", equityCSV}, backtestArgs...)
	out, err := execute(t, cfg, args...)
	if err != nil {
		t.Fatalf("%v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved as run 1") || !strings.Contains(out, "custom on SYNTH") {
		t.Errorf("unexpected output:\n%s", out)
	}

	trades, err := os.ReadFile(tradesCSV)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(trades), "strategy,entry_date,exit_date") || !strings.Contains(string(trades), "custom,2024-01-01,2024-02-01") {
		t.Errorf("unexpected trades csv:\n%s", trades)
	}
	equity, err := os.ReadFile(equityCSV)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(equity)), "\n"); lines != 32 {
		t.Errorf("equity csv should hold a header and 32 rows, got %d newlines", lines)
	}

	var records []store.BacktestRecord
	executeJSON(t, cfg, &records, "backtest", "history", "--strategy", "custom")
	if len(records) != 1 || records[0].Result.Strategy != "custom" || len(records[0].Config.Strategy.Legs) != 2 {
		t.Fatalf("unexpected history: %+v", records)
	}

	out, err = execute(t, cfg, "backtest", "show", fmt.Sprint(records[0].ID))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "-1 put K-5") || !strings.Contains(out, "Equity Curve") {
		t.Errorf("unexpected show output:\n%s", out)
	}
}

func TestBacktestRun_Errors(t *testing.T) {
	cfg := testConfig(t)
	tests := map[string][]string{
		"unknown strategy": append([]string{"backtest", "run", "--strategy", "wheel"}, backtestArgs...),
		"bad leg":          append([]string{"backtest", "run", "--leg", "long:future:0"}, backtestArgs...),
		"bad date":         {"backtest", "run", "--strike", "100", "--start", "2024-01-01", "--expiration", "March"},
		"negative capital": append([]string{"backtest", "run", "--capital", "-5"}, backtestArgs...),
		"expired":          {"backtest", "run", "--strike", "100", "--start", "2024-02-01", "--expiration", "2024-02-01"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, cfg, args...); ExitCode(err) != ExitValidation {
				t.Errorf("expected validation exit, got %v", err)
			}
		})
	}

	if _, err := execute(t, cfg, append([]string{"backtest", "run", "--source", "csv"}, backtestArgs...)...); ExitCode(err) != ExitNotFound {
		t.Errorf("missing csv should exit not found, got %v", err)
	}
}

func TestBacktestRun_InlineSeries(t *testing.T) {
	cfg := testConfig(t)
	args := []string{"backtest", "run", "--strategy", "call", "--strike", "100", "--expiration", "2024-01-10",
		"--prices", "100,101,102.5,103", "--dates", "2024-01-02,2024-01-03,2024-01-04,2024-01-05"}

	var r backtest.Result
	executeJSON(t, cfg, &r, args...)
	if len(r.EquityCurve) != 4 || r.EquityCurve[3].Spot != 103 {
		t.Fatalf("unexpected curve: %+v", r.EquityCurve)
	}
	if len(r.Trades) != 1 || r.Trades[0].Reason != backtest.ReasonEndOfData {
		t.Errorf("expected one trade closed at end of data, got %+v", r.Trades)
	}

	mismatched := []string{"backtest", "run", "--strike", "100", "--expiration", "2024-01-10",
		"--prices", "100,101,102", "--dates", "2024-01-02,2024-01-03"}
	_, err := execute(t, cfg, mismatched...)
	if !errors.Is(err, apperrors.ErrInvalidPriceSeries) || ExitCode(err) != ExitValidation {
		t.Errorf("length mismatch should be an invalid price series, got %v", err)
	}

	for name, flags := range map[string][]string{
		"bad price": {"--prices", "100,10x", "--dates", "2024-01-02,2024-01-03"},
		"bad date":  {"--prices", "100,101", "--dates", "2024-01-02,Jan 3"},
	} {
		args := append([]string{"backtest", "run", "--strike", "100", "--expiration", "2024-01-10"}, flags...)
		if _, err := execute(t, cfg, args...); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("%s: expected input validation, got %v", name, err)
		}
	}
}

func TestBacktestCompare(t *testing.T) {
	var ranked []backtest.StrategyComparison
	executeJSON(t, testConfig(t), &ranked, append([]string{"backtest", "compare", "--strategies", "straddle, call,iron_condor"}, backtestArgs...)...)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].SharpeRatio > ranked[i-1].SharpeRatio {
			t.Errorf("not ranked by Sharpe: %+v", ranked)
		}
	}
}

func TestBacktestStrategies(t *testing.T) {
	var strategies []backtest.Strategy
	executeJSON(t, testConfig(t), &strategies, "backtest", "strategies", "--width", "10")
	if len(strategies) != len(backtest.StrategyNames()) {
		t.Fatalf("got %d strategies", len(strategies))
	}
	for _, s := range strategies {
		if s.Name == "call_spread" && s.Legs[1].StrikeOffset != 10 {
			t.Errorf("width not applied: %+v", s.Legs)
		}
	}
}

func TestDataGenerateImportExport(t *testing.T) {
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "SYNTH.csv")

	if _, err := execute(t, cfg, "data", "generate", "--start", "2024-01-01", "--end", "2024-01-10", "--save", "--out", csvPath); err != nil {
		t.Fatal(err)
	}

	var tickers []store.TickerSummary
	executeJSON(t, cfg, &tickers, "data", "list")
	if len(tickers) != 1 || tickers[0].Ticker != "SYNTH" || tickers[0].Count != 10 {
		t.Fatalf("unexpected tickers: %+v", tickers)
	}

	if _, err := execute(t, cfg, "data", "import", csvPath, "--ticker", "copy"); err != nil {
		t.Fatal(err)
	}
	executeJSON(t, cfg, &tickers, "data", "list")
	if len(tickers) != 2 {
		t.Fatalf("import should add a ticker: %+v", tickers)
	}

	out, err := execute(t, cfg, "data", "export", "COPY")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "date,open,high,low,close,volume") || strings.Count(out, "\n") != 11 {
		t.Errorf("unexpected export:\n%s", out)
	}

	var original, copied []struct {
		Price float64 `json:"price"`
	}
	executeJSON(t, cfg, &original, "data", "show", "SYNTH", "--source", "sqlite")
	executeJSON(t, cfg, &copied, "data", "show", "copy", "--source", "sqlite")
	if len(original) != len(copied) {
		t.Fatalf("lengths differ: %d vs %d", len(original), len(copied))
	}
	for i := range original {
		if math.Abs(original[i].Price-copied[i].Price) > 1e-9 {
			t.Errorf("sample %d: %v vs %v", i, original[i].Price, copied[i].Price)
		}
	}
}

func TestBacktestRun_CSVSource(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Data.CSVDir, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, cfg, "data", "generate", "--ticker", "spy", "--start", "2024-01-01", "--end", "2024-02-01",
		"--out", filepath.Join(cfg.Data.CSVDir, "SPY.csv")); err != nil {
		t.Fatal(err)
	}

	var fromCSV, fromSynthetic backtest.Result
	executeJSON(t, cfg, &fromCSV, append([]string{"backtest", "run", "--ticker", "spy", "--source", "csv"}, backtestArgs...)...)
	executeJSON(t, cfg, &fromSynthetic, append([]string{"backtest", "run", "--ticker", "spy"}, backtestArgs...)...)
	if math.Abs(fromCSV.FinalEquity-fromSynthetic.FinalEquity) > 1e-6 {
		t.Errorf("csv replay differs from generated series: %v vs %v", fromCSV.FinalEquity, fromSynthetic.FinalEquity)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{apperrors.NewValidationError("spot", -1, "must be positive", apperrors.ErrInvalidMarketState), ExitValidation},
		{fmt.Errorf("wrapped: %w", apperrors.ErrInvalidStrategySpec), ExitValidation},
		{apperrors.NewDataError("prices", "SPY", "none", apperrors.ErrDataNotFound), ExitNotFound},
		{fmt.Errorf("load: %w", apperrors.ErrConfigInvalid), ExitConfig},
		{fmt.Errorf("db: %w", apperrors.ErrDatabaseError), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
