package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/models"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage underlying price history",
		Long: `Import, generate, inspect and export the daily price series that
backtests run over. Imported and saved series live in the SQLite database;
CSV files use the columns date,open,high,low,close,volume.`,
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataGenerateCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataShowCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "import <file.csv>",
		Short:   "Load a CSV price file into the database",
		Example: `  greeks data import spy.csv --ticker SPY`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker, _ := cmd.Flags().GetString("ticker")
			if ticker == "" {
				ticker = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			ticker = strings.ToUpper(ticker)

			start := time.Now()
			f, err := os.Open(args[0])
			if err != nil {
				return apperrors.NewDataError("prices", ticker, "cannot open csv", fmt.Errorf("%w: %v", apperrors.ErrDataNotFound, err))
			}
			defer f.Close()

			candles, err := marketdata.ReadCandles(f)
			logging.LogDataLoad(logging.FromContext(cmd.Context()), "csv", ticker, len(candles), time.Since(start), err)
			if err != nil {
				return err
			}
			samples := make([]models.PriceSample, len(candles))
			for i, c := range candles {
				samples[i] = c.Sample()
			}
			marketdata.SortByDate(samples)
			if err := marketdata.ValidateSeries(samples); err != nil {
				return err
			}

			s, err := app.store()
			if err != nil {
				return err
			}
			if err := s.SaveCandles(cmd.Context(), ticker, candles); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"ticker": ticker, "imported": len(candles)})
			}
			output.Success("✓ Imported %d samples for %s (%s to %s)", len(samples), ticker,
				FormatDate(samples[0].Date), FormatDate(samples[len(samples)-1].Date))
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "ticker to store under (default file name)")
	return cmd
}

func newDataGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a seeded random-walk price series",
		Example: `  greeks data generate --ticker SYNTH --start 2024-01-01 --end 2024-06-30 --save
  greeks data generate --start 2024-01-01 --end 2024-03-31 --seed 7 --out data/SYNTH.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker, _ := cmd.Flags().GetString("ticker")
			ticker = strings.ToUpper(ticker)
			from, err := dateFlag(cmd, "start")
			if err != nil {
				return err
			}
			to, err := dateFlag(cmd, "end")
			if err != nil {
				return err
			}

			sc := app.Config.SyntheticConfig()
			if cmd.Flags().Changed("seed") {
				sc.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("price") {
				sc.StartPrice, _ = cmd.Flags().GetFloat64("price")
			}
			if cmd.Flags().Changed("daily-vol") {
				sc.DailyVol, _ = cmd.Flags().GetFloat64("daily-vol")
			}
			samples, err := marketdata.NewSyntheticProvider(sc).GetPriceSeries(cmd.Context(), ticker, from, to)
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				s, err := app.store()
				if err != nil {
					return err
				}
				if err := s.SavePrices(cmd.Context(), ticker, samples); err != nil {
					return err
				}
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := writeSamplesCSV(out, samples); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(samples)
			}
			printSeries(output, ticker, samples, app.Config.Backtest.VolLookback)
			return nil
		},
	}
	cmd.Flags().String("ticker", "SYNTH", "ticker to label the series with")
	cmd.Flags().String("start", "", "first date YYYY-MM-DD (required)")
	cmd.Flags().String("end", "", "last date YYYY-MM-DD (required)")
	cmd.Flags().Int64("seed", 0, "random seed (default from config)")
	cmd.Flags().Float64("price", 0, "starting price (default from config)")
	cmd.Flags().Float64("daily-vol", 0, "daily return volatility (default from config)")
	cmd.Flags().Bool("save", false, "store the series in the database")
	cmd.Flags().String("out", "", "also write the series to this CSV file")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func writeSamplesCSV(path string, samples []models.PriceSample) error {
	candles := make([]models.Candle, len(samples))
	for i, s := range samples {
		candles[i] = models.Candle{Timestamp: s.Date, Open: s.Price, High: s.Price, Low: s.Price, Close: s.Price}
	}
	return writeCandlesFile(path, candles)
}

func writeCandlesFile(path string, candles []models.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := marketdata.WriteCandles(f, candles); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tickers stored in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.store()
			if err != nil {
				return err
			}
			tickers, err := s.ListTickers(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(tickers)
			}
			if len(tickers) == 0 {
				output.Info("No stored price history; use 'greeks data import' or 'greeks data generate --save'")
				return nil
			}
			table := NewTable(output, "TICKER", "SAMPLES", "FIRST", "LAST")
			for _, t := range tickers {
				table.AddRow(t.Ticker, strconv.Itoa(t.Count), FormatDate(t.First), FormatDate(t.Last))
			}
			table.Render()
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <ticker>",
		Short: "Show a price series with its realised volatility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker := strings.ToUpper(args[0])
			from, err := dateFlag(cmd, "start")
			if err != nil {
				return err
			}
			to, err := dateFlag(cmd, "end")
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			provider, err := app.provider(source)
			if err != nil {
				return err
			}

			start := time.Now()
			samples, err := provider.GetPriceSeries(cmd.Context(), ticker, from, to)
			logging.LogDataLoad(logging.FromContext(cmd.Context()), fmt.Sprintf("%T", provider), ticker, len(samples), time.Since(start), err)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(samples)
			}
			printSeries(output, ticker, samples, app.Config.Backtest.VolLookback)
			return nil
		},
	}
	cmd.Flags().String("start", "", "first date YYYY-MM-DD")
	cmd.Flags().String("end", "", "last date YYYY-MM-DD")
	cmd.Flags().String("source", "", "price source: synthetic, csv or sqlite (default from config)")
	return cmd
}

// printSeries lists samples with the trailing realised volatility where
// enough history exists.
func printSeries(output *Output, ticker string, samples []models.PriceSample, lookback int) {
	output.Bold("%s: %d samples", ticker, len(samples))
	output.Println()
	table := NewTable(output, "DATE", "PRICE", "CHANGE", fmt.Sprintf("VOL(%d)", lookback))
	for i, s := range samples {
		change := ""
		if i > 0 && samples[i-1].Price != 0 {
			r := s.Price/samples[i-1].Price - 1
			change = output.Signed(r, FormatPercent(r))
		}
		vol := "-"
		if v, ok := marketdata.RealizedVolatility(samples, i, lookback); ok {
			vol = FormatPercent(v)
		}
		table.AddRow(FormatDate(s.Date), fmt.Sprintf("%.2f", s.Price), change, vol)
	}
	table.Render()
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export <ticker>",
		Short:   "Write stored candles to CSV",
		Example: `  greeks data export SPY --out spy.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker := strings.ToUpper(args[0])
			from, err := dateFlag(cmd, "start")
			if err != nil {
				return err
			}
			to, err := dateFlag(cmd, "end")
			if err != nil {
				return err
			}

			s, err := app.store()
			if err != nil {
				return err
			}
			candles, err := s.GetCandles(cmd.Context(), ticker, from, to)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" || out == "-" {
				return marketdata.WriteCandles(cmd.OutOrStdout(), candles)
			}
			if err := writeCandlesFile(out, candles); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"ticker": ticker, "exported": len(candles), "path": out})
			}
			output.Success("✓ Wrote %d candles to %s", len(candles), out)
			return nil
		},
	}
	cmd.Flags().String("start", "", "first date YYYY-MM-DD")
	cmd.Flags().String("end", "", "last date YYYY-MM-DD")
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	return cmd
}
