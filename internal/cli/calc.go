package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"greeks-simulator/internal/models"
	"greeks-simulator/internal/pricing"
	"greeks-simulator/internal/scenario"
)

func newCalcCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price a single option and stress it",
		Long: `Black-Scholes valuation of one European option.

Market inputs are given with --spot, --strike, --tte (years) or --days,
--rate, --vol, --dividend and --type. Rate and volatility default to the
backtest section of the configuration.`,
	}

	cmd.AddCommand(newCalcGreeksCmd(app))
	cmd.AddCommand(newCalcSurfaceCmd(app))
	cmd.AddCommand(newCalcScenariosCmd(app))
	cmd.AddCommand(newCalcThetaCmd(app))
	return cmd
}

func addMarketFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("spot", 0, "underlying price (required)")
	cmd.Flags().Float64("strike", 0, "strike price (required)")
	cmd.Flags().Float64("tte", 0.25, "time to expiry in years")
	cmd.Flags().Int("days", 0, "calendar days to expiry (overrides --tte)")
	cmd.Flags().Float64("rate", 0, "annual risk-free rate (default from config)")
	cmd.Flags().Float64("vol", 0, "annualised volatility (default from config)")
	cmd.Flags().Float64("dividend", 0, "continuous dividend yield")
	cmd.Flags().StringP("type", "t", "call", "option type: call or put")
	cmd.MarkFlagRequired("spot")
	cmd.MarkFlagRequired("strike")
}

// readMarket builds the market state and contract from the market flags.
// Validation happens in the pricing package.
func readMarket(cmd *cobra.Command, app *App) (models.MarketState, models.OptionSpec, error) {
	flags := cmd.Flags()
	spot, _ := flags.GetFloat64("spot")
	strike, _ := flags.GetFloat64("strike")
	tte, _ := flags.GetFloat64("tte")
	days, _ := flags.GetInt("days")
	rate, _ := flags.GetFloat64("rate")
	vol, _ := flags.GetFloat64("vol")
	dividend, _ := flags.GetFloat64("dividend")
	kindStr, _ := flags.GetString("type")

	kind, err := models.ParseOptionKind(kindStr)
	if err != nil {
		return models.MarketState{}, models.OptionSpec{}, err
	}
	if days > 0 {
		tte = float64(days) / pricing.DaysPerYear
	}
	if !flags.Changed("rate") {
		rate = app.Config.Backtest.RiskFreeRate
	}
	if !flags.Changed("vol") {
		vol = app.Config.Backtest.Volatility
	}

	m := models.MarketState{
		Spot:         spot,
		Rate:         rate,
		Dividend:     dividend,
		Volatility:   vol,
		TimeToExpiry: tte,
	}
	o := models.OptionSpec{Strike: strike, Kind: kind}
	return m, o, pricing.Validate(m, o)
}

func newCalcGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Price and Greeks of one option",
		Example: `  greeks calc greeks --spot 100 --strike 100 --tte 0.25 --vol 0.2
  greeks calc greeks --spot 100 --strike 95 --days 30 --type put`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, o, err := readMarket(cmd, app)
			if err != nil {
				return err
			}
			g, err := pricing.PriceAndGreeks(m, o)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(g)
			}

			output.Bold("%s %g  S=%g  T=%.4fy  σ=%s  r=%s", o.Kind, o.Strike, m.Spot, m.TimeToExpiry,
				FormatPercent(m.Volatility), FormatPercent(m.Rate))
			output.Println()
			output.Printf("  Price: %s\n", FormatMoney(g.Price))
			for _, name := range models.AllGreeks() {
				output.Printf("  %-6s %s\n", name+":", FormatGreek(g.Value(name)))
			}
			output.Dim("Vega and rho per 1 vol/rate point, theta per calendar day")
			return nil
		},
	}
	addMarketFlags(cmd)
	return cmd
}

func newCalcSurfaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surface",
		Short: "PnL over a grid of underlying and volatility shocks",
		Example: `  greeks calc surface --spot 100 --strike 100 --steps 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, o, err := readMarket(cmd, app)
			if err != nil {
				return err
			}
			sc := app.Config.SurfaceConfig()
			if steps, _ := cmd.Flags().GetInt("steps"); steps > 0 {
				sc.Steps = steps
			}

			surface, err := pricing.PnLSurface(m, o, sc)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(surface)
			}

			output.Bold("PnL surface (initial price %s, delta %s)", FormatMoney(surface.InitialPrice), FormatGreek(surface.InitialDelta))
			output.Println()
			headers := []string{"IV \\ S"}
			for _, s := range surface.UnderlyingPrices {
				headers = append(headers, fmt.Sprintf("%.2f", s))
			}
			table := NewTable(output, headers...)
			for i, iv := range surface.IVLevels {
				row := []string{FormatPercent(iv)}
				for _, pnl := range surface.PnL[i] {
					row = append(row, output.Signed(pnl, FormatPnL(pnl)))
				}
				table.AddRow(row...)
			}
			table.Render()
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Int("steps", 0, "grid points per axis (default from config)")
	return cmd
}

func newCalcScenariosCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Revalue under price and volatility shocks",
		Example: `  greeks calc scenarios --spot 100 --strike 100 --price-shocks=-0.1,0,0.1 --iv-shocks=-0.2,0.2 --days-forward 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, o, err := readMarket(cmd, app)
			if err != nil {
				return err
			}

			req := scenario.Request{
				PriceShocks: app.Config.Scenario.PriceShocks,
				IVShocks:    app.Config.Scenario.IVShocks,
				DaysForward: app.Config.Scenario.DaysForward,
			}
			if s, _ := cmd.Flags().GetString("price-shocks"); s != "" {
				if req.PriceShocks, err = ParseFloatList(s); err != nil {
					return err
				}
			}
			if s, _ := cmd.Flags().GetString("iv-shocks"); s != "" {
				if req.IVShocks, err = ParseFloatList(s); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("days-forward") {
				req.DaysForward, _ = cmd.Flags().GetInt("days-forward")
			}

			result, err := scenario.Generate(m, o, req)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Bold("Scenarios for %s %g (initial price %s, %d days forward)", o.Kind, o.Strike,
				FormatMoney(result.InitialPrice), req.DaysForward)
			output.Println()
			table := NewTable(output, "PRICE", "IV", "SPOT", "VOL", "VALUE", "DELTA", "PNL", "PNL%")
			for _, p := range result.Scenarios {
				table.AddRow(
					fmt.Sprintf("%+.1f%%", p.PriceShockPct),
					fmt.Sprintf("%+.1f%%", p.IVShockPct),
					fmt.Sprintf("%.2f", p.ShockedUnderlying),
					FormatPercent(p.ShockedIV),
					FormatMoney(p.NewPrice),
					FormatGreek(p.NewDelta),
					output.Signed(p.PnL, FormatPnL(p.PnL)),
					output.Signed(p.PnL, fmt.Sprintf("%+.2f%%", p.PnLPct)),
				)
			}
			table.Render()
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().String("price-shocks", "", "comma-separated price shocks as fractions (default from config)")
	cmd.Flags().String("iv-shocks", "", "comma-separated volatility shocks as fractions (default from config)")
	cmd.Flags().Int("days-forward", scenario.DefaultDaysForward, "calendar days to move forward (default from config)")
	return cmd
}

func newCalcThetaCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "theta-decay",
		Aliases: []string{"decay"},
		Short:   "Value the option day by day as time passes",
		Example: `  greeks calc theta-decay --spot 100 --strike 100 --days 45 --horizon 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, o, err := readMarket(cmd, app)
			if err != nil {
				return err
			}
			horizon := app.Config.Scenario.DecayDays
			if cmd.Flags().Changed("horizon") {
				horizon, _ = cmd.Flags().GetInt("horizon")
			}

			schedule, err := scenario.ThetaDecay(m, o, horizon)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(schedule)
			}

			table := NewTable(output, "DAY", "T", "PRICE", "DELTA", "GAMMA", "VEGA", "THETA")
			for _, p := range schedule {
				table.AddRow(
					fmt.Sprintf("%d", p.Day),
					fmt.Sprintf("%.4f", p.TimeToExpiration),
					FormatMoney(p.Price),
					FormatGreek(p.Delta),
					FormatGreek(p.Gamma),
					FormatGreek(p.Vega),
					FormatGreek(p.Theta),
				)
			}
			table.Render()
			return nil
		},
	}
	addMarketFlags(cmd)
	cmd.Flags().Int("horizon", scenario.DefaultDecayDays, "days of decay to show (default from config)")
	return cmd
}
