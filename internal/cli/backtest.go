package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"greeks-simulator/internal/backtest"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/store"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backtest",
		Aliases: []string{"bt"},
		Short:   "Backtest option strategies",
		Long: `Open a multi-leg option strategy on the first day of a price series and
mark it to Black-Scholes every day until expiration or the end of data.

Strategies are named (see 'greeks backtest strategies') or built from
--leg expressions of the form side:kind:offset[:qty[:vol]], for example
--leg short:call:5 --leg long:call:10.`,
	}

	cmd.AddCommand(newBacktestRunCmd(app))
	cmd.AddCommand(newBacktestCompareCmd(app))
	cmd.AddCommand(newBacktestStrategiesCmd(app))
	cmd.AddCommand(newBacktestHistoryCmd(app))
	cmd.AddCommand(newBacktestShowCmd(app))
	return cmd
}

func addBacktestFlags(cmd *cobra.Command) {
	cmd.Flags().String("ticker", "SYNTH", "underlying ticker")
	cmd.Flags().Float64("strike", 0, "base strike; leg offsets are added to it (required)")
	cmd.Flags().String("expiration", "", "option expiration date YYYY-MM-DD (required)")
	cmd.Flags().String("start", "", "first date of the price series YYYY-MM-DD")
	cmd.Flags().String("end", "", "last date of the price series YYYY-MM-DD (default expiration)")
	cmd.Flags().Float64("capital", 0, "initial capital (default from config)")
	cmd.Flags().Float64("rate", 0, "risk-free rate (default from config)")
	cmd.Flags().Float64("vol", 0, "pricing volatility (default from config)")
	cmd.Flags().String("vol-model", "", "constant or historical (default from config)")
	cmd.Flags().Int("lookback", 0, "historical volatility lookback in samples (default from config)")
	cmd.Flags().Float64("width", 0, "strike width for spreads and condors (default from config)")
	cmd.Flags().String("source", "", "price source: synthetic, csv or sqlite (default from config)")
	cmd.Flags().String("prices", "", "inline comma-separated prices; replaces --source")
	cmd.Flags().String("dates", "", "comma-separated YYYY-MM-DD dates, one per --prices value")
	cmd.Flags().Bool("save", false, "store the result in the database")
	cmd.MarkFlagRequired("strike")
	cmd.MarkFlagRequired("expiration")
}

// backtestConfig assembles a run from the configuration defaults and flags.
// The strategy is left empty.
func (app *App) backtestConfig(cmd *cobra.Command) (backtest.Config, error) {
	flags := cmd.Flags()
	cfg := app.Config.BacktestDefaults()

	cfg.Ticker, _ = flags.GetString("ticker")
	cfg.Ticker = strings.ToUpper(strings.TrimSpace(cfg.Ticker))
	cfg.Strike, _ = flags.GetFloat64("strike")

	var err error
	if cfg.Expiration, err = dateFlag(cmd, "expiration"); err != nil {
		return cfg, err
	}
	if cfg.StartDate, err = dateFlag(cmd, "start"); err != nil {
		return cfg, err
	}
	if cfg.EndDate, err = dateFlag(cmd, "end"); err != nil {
		return cfg, err
	}
	if cfg.EndDate.IsZero() {
		cfg.EndDate = cfg.Expiration
	}

	if flags.Changed("capital") {
		cfg.InitialCapital, _ = flags.GetFloat64("capital")
	}
	if flags.Changed("rate") {
		cfg.RiskFreeRate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("vol") {
		cfg.Volatility, _ = flags.GetFloat64("vol")
	}
	if flags.Changed("vol-model") {
		cfg.VolatilityModel, _ = flags.GetString("vol-model")
	}
	if flags.Changed("lookback") {
		cfg.VolLookback, _ = flags.GetInt("lookback")
	}
	return cfg, nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(name, s, err.Error(), apperrors.ErrInputValidation)
	}
	return t, nil
}

func (app *App) width(cmd *cobra.Command) float64 {
	if cmd.Flags().Changed("width") {
		w, _ := cmd.Flags().GetFloat64("width")
		return w
	}
	return app.Config.Backtest.Width
}

func (app *App) backtestEngine(cmd *cobra.Command) (*backtest.Engine, error) {
	provider, err := app.seriesProvider(cmd)
	if err != nil {
		return nil, err
	}
	return backtest.NewEngine(provider, logging.FromContext(cmd.Context())), nil
}

// seriesProvider serves --prices/--dates when given, else the configured source.
func (app *App) seriesProvider(cmd *cobra.Command) (marketdata.Provider, error) {
	flags := cmd.Flags()
	if flags.Changed("prices") || flags.Changed("dates") {
		p, _ := flags.GetString("prices")
		d, _ := flags.GetString("dates")
		prices, err := ParseFloatList(p)
		if err != nil {
			return nil, err
		}
		dates, err := ParseDateList(d)
		if err != nil {
			return nil, err
		}
		return marketdata.FromSeries(prices, dates), nil
	}
	source, _ := flags.GetString("source")
	return app.provider(source)
}

func newBacktestRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one strategy",
		Example: `  greeks backtest run --strategy straddle --strike 100 --start 2024-01-02 --expiration 2024-03-15
  greeks backtest run --leg short:put:-5 --leg long:put:-10 --strike 450 --ticker SPY \
      --source csv --start 2024-01-02 --expiration 2024-02-16 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg, err := app.backtestConfig(cmd)
			if err != nil {
				return err
			}

			legs, _ := cmd.Flags().GetStringArray("leg")
			name, _ := cmd.Flags().GetString("strategy")
			if len(legs) > 0 {
				if !cmd.Flags().Changed("strategy") {
					name = ""
				}
				cfg.Strategy, err = backtest.CustomStrategy(name, legs)
			} else {
				cfg.Strategy, err = backtest.NamedStrategy(name, app.width(cmd))
			}
			if err != nil {
				return err
			}

			engine, err := app.backtestEngine(cmd)
			if err != nil {
				return err
			}
			result, err := engine.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			var runID int64
			if save, _ := cmd.Flags().GetBool("save"); save {
				s, err := app.store()
				if err != nil {
					return err
				}
				if runID, err = s.SaveBacktestResult(cmd.Context(), cfg, result); err != nil {
					return err
				}
			}
			if err := writeExports(cmd, result); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printBacktestResult(output, cfg.Strategy.Describe(), result)
			if chart, _ := cmd.Flags().GetBool("chart"); chart {
				output.Println()
				output.Println(backtest.EquityCurveASCII(result, 60, 12))
			}
			if runID > 0 {
				output.Println()
				output.Success("✓ Saved as run %d", runID)
			}
			return nil
		},
	}
	addBacktestFlags(cmd)
	cmd.Flags().StringP("strategy", "s", "straddle", "named strategy, or the name of a --leg strategy")
	cmd.Flags().StringArray("leg", nil, "custom leg side:kind:offset[:qty[:vol]] (repeatable)")
	cmd.Flags().Bool("chart", false, "draw the equity curve")
	cmd.Flags().String("trades-csv", "", "write trades to this CSV file")
	cmd.Flags().String("equity-csv", "", "write the equity curve to this CSV file")
	return cmd
}

func writeExports(cmd *cobra.Command, result *backtest.Result) error {
	exports := []struct {
		flag  string
		write func(f *os.File) error
	}{
		{"trades-csv", func(f *os.File) error { return backtest.WriteTradesCSV(f, result.Trades) }},
		{"equity-csv", func(f *os.File) error { return backtest.WriteEquityCSV(f, result.EquityCurve) }},
	}
	for _, e := range exports {
		path, _ := cmd.Flags().GetString(e.flag)
		if path == "" {
			continue
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if err := e.write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
	}
	return nil
}

func printBacktestResult(output *Output, description string, r *backtest.Result) {
	output.Bold("%s on %s", r.Strategy, r.Ticker)
	output.Dim("%s", description)
	output.Println()

	output.Printf("  Initial Capital: %s\n", FormatMoney(r.InitialCapital))
	output.Printf("  Final Equity:    %s\n", FormatMoney(r.FinalEquity))
	output.Printf("  Total Return:    %s\n", output.Signed(r.TotalReturn, FormatPercent(r.TotalReturn)))
	output.Printf("  Max Drawdown:    %s\n", FormatPercent(r.MaxDrawdown))
	output.Printf("  Sharpe Ratio:    %.2f\n", r.SharpeRatio)
	output.Printf("  Win Rate:        %s\n", FormatPercent(r.WinRate))

	if len(r.Trades) == 0 {
		return
	}
	output.Println()
	table := NewTable(output, "ENTRY", "EXIT", "SPOT IN", "SPOT OUT", "VALUE IN", "VALUE OUT", "PNL", "REASON")
	for _, t := range r.Trades {
		table.AddRow(
			FormatDate(t.EntryDate),
			FormatDate(t.ExitDate),
			fmt.Sprintf("%.2f", t.EntrySpot),
			fmt.Sprintf("%.2f", t.ExitSpot),
			FormatMoney(t.EntryValue),
			FormatMoney(t.ExitValue),
			output.Signed(t.PnL, FormatPnL(t.PnL)),
			t.Reason,
		)
	}
	table.Render()
}

func newBacktestCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several strategies over the same data and rank them",
		Example: `  greeks backtest compare --strike 100 --start 2024-01-02 --expiration 2024-03-15
  greeks backtest compare --strategies straddle,strangle,iron_condor --strike 100 --expiration 2024-03-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg, err := app.backtestConfig(cmd)
			if err != nil {
				return err
			}

			names := backtest.StrategyNames()
			if s, _ := cmd.Flags().GetString("strategies"); s != "" {
				names = strings.Split(s, ",")
			}
			strategies := make([]backtest.Strategy, 0, len(names))
			for _, name := range names {
				st, err := backtest.NamedStrategy(strings.TrimSpace(name), app.width(cmd))
				if err != nil {
					return err
				}
				strategies = append(strategies, st)
			}

			engine, err := app.backtestEngine(cmd)
			if err != nil {
				return err
			}
			results, err := engine.Compare(cmd.Context(), cfg, strategies)
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				s, err := app.store()
				if err != nil {
					return err
				}
				for _, st := range strategies {
					run := cfg
					run.Strategy = st
					if _, err := s.SaveBacktestResult(cmd.Context(), run, results[st.Name]); err != nil {
						return err
					}
				}
			}

			ranked := backtest.CompareStrategies(results)
			if output.IsJSON() {
				return output.JSON(ranked)
			}
			output.Bold("Strategy comparison on %s", cfg.Ticker)
			output.Println()
			table := NewTable(output, "RANK", "STRATEGY", "RETURN", "MAX DD", "SHARPE", "WIN RATE", "FINAL EQUITY")
			for i, c := range ranked {
				table.AddRow(
					strconv.Itoa(i+1),
					TruncateString(c.Strategy, maxNameWidth),
					output.Signed(c.TotalReturn, FormatPercent(c.TotalReturn)),
					FormatPercent(c.MaxDrawdown),
					fmt.Sprintf("%.2f", c.SharpeRatio),
					FormatPercent(c.WinRate),
					FormatMoney(c.FinalEquity),
				)
			}
			table.Render()
			return nil
		},
	}
	addBacktestFlags(cmd)
	cmd.Flags().String("strategies", "", "comma-separated strategy names (default all)")
	return cmd
}

func newBacktestStrategiesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List named strategies and their legs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			width := app.width(cmd)
			strategies := make([]backtest.Strategy, 0, len(backtest.StrategyNames()))
			for _, name := range backtest.StrategyNames() {
				st, err := backtest.NamedStrategy(name, width)
				if err != nil {
					return err
				}
				strategies = append(strategies, st)
			}
			if output.IsJSON() {
				return output.JSON(strategies)
			}
			table := NewTable(output, "NAME", "LEGS")
			for _, st := range strategies {
				table.AddRow(st.Name, st.Describe())
			}
			table.Render()
			output.Println()
			output.Dim("Offsets are added to --strike; width %g", width)
			return nil
		},
	}
	cmd.Flags().Float64("width", 0, "strike width (default from config)")
	return cmd
}

// maxNameWidth bounds user-chosen names in table columns.
const maxNameWidth = 20

func newBacktestHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved backtest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.store()
			if err != nil {
				return err
			}
			filter := store.BacktestFilter{}
			filter.Ticker, _ = cmd.Flags().GetString("ticker")
			filter.Strategy, _ = cmd.Flags().GetString("strategy")
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			records, err := s.ListBacktestResults(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No saved backtests")
				return nil
			}
			table := NewTable(output, "ID", "SAVED", "TICKER", "STRATEGY", "RETURN", "SHARPE", "MAX DD", "TRADES")
			for _, rec := range records {
				r := rec.Result
				table.AddRow(
					strconv.FormatInt(rec.ID, 10),
					rec.CreatedAt.Format("2006-01-02 15:04"),
					TruncateString(r.Ticker, maxNameWidth),
					TruncateString(r.Strategy, maxNameWidth),
					output.Signed(r.TotalReturn, FormatPercent(r.TotalReturn)),
					fmt.Sprintf("%.2f", r.SharpeRatio),
					FormatPercent(r.MaxDrawdown),
					strconv.Itoa(len(r.Trades)),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "filter by ticker")
	cmd.Flags().String("strategy", "", "filter by strategy name")
	cmd.Flags().IntP("limit", "n", 20, "maximum runs to list")
	return cmd
}

func newBacktestShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved backtest with its equity curve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return apperrors.NewValidationError("id", args[0], "must be an integer", apperrors.ErrInputValidation)
			}
			s, err := app.store()
			if err != nil {
				return err
			}
			rec, err := s.GetBacktestResult(cmd.Context(), id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rec)
			}
			printBacktestResult(output, rec.Config.Strategy.Describe(), rec.Result)
			output.Println()
			output.Println(backtest.EquityCurveASCII(rec.Result, 60, 12))
			return nil
		},
	}
}
