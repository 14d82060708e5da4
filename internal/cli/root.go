package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"greeks-simulator/internal/config"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/performance"
	"greeks-simulator/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// Exit codes returned by ExitCode.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitConfig     = 4
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore

	// configured is true when Config was supplied by the caller rather
	// than loaded from --config.
	configured bool
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded
// from the --config directory before any subcommand runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		configured: cfg != nil,
	}

	rootCmd := &cobra.Command{
		Use:   "greeks",
		Short: "Options Greeks simulator and strategy backtester",
		Long: `greeks prices European options with Black-Scholes, sweeps price and
volatility shocks, aggregates portfolio Greeks into hedge ratios and
backtests multi-leg option strategies over historical or synthetic prices.

Use 'greeks <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/greeks-simulator)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newCalcCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newExamplesCmd())

	return rootCmd
}

func (app *App) setup(cmd *cobra.Command) error {
	if !app.configured {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		app.Config = cfg
		app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		app.Logger = app.Logger.Level(zerolog.DebugLevel)
	}
	if !app.Config.UI.ColorEnabled {
		color.NoColor = true
	}
	if app.Config.Pricing.Workers > 0 {
		performance.SetDefaultWorkers(app.Config.Pricing.Workers)
	}
	app.Logger.Debug().Str("command", cmd.CommandPath()).Str("config", app.Config.Path()).Msg("Starting")
	cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger.With().Str("command", cmd.CommandPath()).Logger()))
	return nil
}

// store opens the SQLite store on first use.
func (app *App) store() (store.DataStore, error) {
	if app.Store != nil {
		return app.Store, nil
	}
	s, err := store.NewSQLiteStore(app.Config.Data.DBPath)
	if err != nil {
		return nil, err
	}
	app.Logger.Debug().Str("path", app.Config.Data.DBPath).Msg("SQLite store initialized")
	app.Store = s
	return s, nil
}

// Close releases the store if it was opened.
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	err := app.Store.Close()
	app.Store = nil
	return err
}

// provider returns the price-series source selected by data.source,
// or by the override when it is non-empty.
func (app *App) provider(override string) (marketdata.Provider, error) {
	source := app.Config.Data.Source
	if override != "" {
		source = override
	}
	switch source {
	case config.SourceSynthetic:
		return marketdata.NewSyntheticProvider(app.Config.SyntheticConfig()), nil
	case config.SourceCSV:
		return marketdata.NewCSVProvider(app.Config.Data.CSVDir), nil
	case config.SourceSQLite:
		return app.store()
	}
	return nil, apperrors.NewValidationError("source", source, "must be synthetic, csv or sqlite", apperrors.ErrInputValidation)
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch apperrors.Kind(err) {
	case apperrors.ErrInvalidMarketState, apperrors.ErrInvalidOption, apperrors.ErrInvalidGreek,
		apperrors.ErrInvalidStrategySpec, apperrors.ErrInvalidPriceSeries, apperrors.ErrInputValidation:
		return ExitValidation
	case apperrors.ErrDataNotFound:
		return ExitNotFound
	case apperrors.ErrConfigInvalid:
		return ExitConfig
	}
	return ExitFailure
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Greeks Simulator v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Path()})
			}
			output.Println(app.Config.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Pricing")
	output.Printf("  Underlying Range: %s to %s\n", FormatPercent(cfg.Pricing.UnderlyingRange[0]), FormatPercent(cfg.Pricing.UnderlyingRange[1]))
	output.Printf("  IV Range:         %s to %s\n", FormatPercent(cfg.Pricing.IVRange[0]), FormatPercent(cfg.Pricing.IVRange[1]))
	output.Printf("  Steps:            %d\n", cfg.Pricing.Steps)
	output.Println()

	output.Bold("Scenario")
	output.Printf("  Price Shocks: %v\n", cfg.Scenario.PriceShocks)
	output.Printf("  IV Shocks:    %v\n", cfg.Scenario.IVShocks)
	output.Printf("  Days Forward: %d\n", cfg.Scenario.DaysForward)
	output.Printf("  Decay Days:   %d\n", cfg.Scenario.DecayDays)
	output.Println()

	output.Bold("Backtest")
	output.Printf("  Initial Capital:  %s\n", FormatMoney(cfg.Backtest.InitialCapital))
	output.Printf("  Risk-Free Rate:   %s\n", FormatPercent(cfg.Backtest.RiskFreeRate))
	output.Printf("  Volatility:       %s (%s)\n", FormatPercent(cfg.Backtest.Volatility), cfg.Backtest.VolatilityModel)
	output.Printf("  Strategy Width:   %g\n", cfg.Backtest.Width)
	output.Println()

	output.Bold("Data")
	output.Printf("  Source:   %s\n", cfg.Data.Source)
	output.Printf("  Database: %s\n", cfg.Data.DBPath)
	output.Printf("  CSV Dir:  %s\n", cfg.Data.CSVDir)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level: %s\n", cfg.Logging.Level)
	logFile := "disabled"
	if cfg.Logging.File {
		logFile = cfg.Logging.FilePath
	}
	output.Printf("  File:  %s\n", logFile)
	output.Println()
	output.Dim("Loaded from %s", cfg.Path())
}
