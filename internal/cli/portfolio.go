package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/portfolio"
)

// positionInput is the flat JSON shape of one position in a positions file.
// A missing quantity means one long contract.
type positionInput struct {
	Ticker           string  `json:"ticker"`
	Strike           float64 `json:"strike"`
	OptionType       string  `json:"option_type"`
	Quantity         *int    `json:"quantity"`
	UnderlyingPrice  float64 `json:"underlying_price"`
	RiskFreeRate     float64 `json:"risk_free_rate"`
	DividendYield    float64 `json:"dividend_yield"`
	Volatility       float64 `json:"volatility"`
	TimeToExpiration float64 `json:"time_to_expiration"`
}

func (p positionInput) position() (models.Position, error) {
	kind, err := models.ParseOptionKind(p.OptionType)
	if err != nil {
		return models.Position{}, err
	}
	qty := 1
	if p.Quantity != nil {
		qty = *p.Quantity
	}
	return models.Position{
		Ticker:   p.Ticker,
		Spec:     models.OptionSpec{Strike: p.Strike, Kind: kind},
		Quantity: qty,
		Market: models.MarketState{
			Spot:         p.UnderlyingPrice,
			Rate:         p.RiskFreeRate,
			Dividend:     p.DividendYield,
			Volatility:   p.Volatility,
			TimeToExpiry: p.TimeToExpiration,
		},
	}, nil
}

// ReadPositions decodes a JSON array of positions.
func ReadPositions(r io.Reader) ([]models.Position, error) {
	var inputs []positionInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, apperrors.NewValidationError("positions", "", fmt.Sprintf("invalid JSON: %v", err), apperrors.ErrInputValidation)
	}
	positions := make([]models.Position, 0, len(inputs))
	for i, in := range inputs {
		p, err := in.position()
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Portfolio Greeks and hedge ratios",
		Long: `Aggregate Greeks across option positions and size underlying hedges.

Positions come from a JSON file (--file, "-" for stdin) or from a portfolio
saved with 'greeks portfolio save'. Each entry has ticker, strike,
option_type, quantity, underlying_price, risk_free_rate, dividend_yield,
volatility and time_to_expiration.`,
	}

	cmd.AddCommand(newPortfolioGreeksCmd(app))
	cmd.AddCommand(newPortfolioHedgeCmd(app))
	cmd.AddCommand(newPortfolioSaveCmd(app))
	cmd.AddCommand(newPortfolioShowCmd(app))
	return cmd
}

func addPositionSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "positions JSON file (- for stdin)")
	cmd.Flags().String("id", "", "saved portfolio ID")
}

func (app *App) loadPositions(cmd *cobra.Command) ([]models.Position, error) {
	file, _ := cmd.Flags().GetString("file")
	id, _ := cmd.Flags().GetString("id")

	switch {
	case file != "" && id != "":
		return nil, apperrors.NewValidationError("file", file, "--file and --id are mutually exclusive", apperrors.ErrInputValidation)
	case file == "-":
		return ReadPositions(cmd.InOrStdin())
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, apperrors.NewDataError("positions", file, "cannot open positions file", fmt.Errorf("%w: %v", apperrors.ErrDataNotFound, err))
		}
		defer f.Close()
		return ReadPositions(f)
	case id != "":
		s, err := app.store()
		if err != nil {
			return nil, err
		}
		return s.GetPositions(cmd.Context(), id)
	}
	return nil, apperrors.NewValidationError("file", "", "one of --file or --id is required", apperrors.ErrInputValidation)
}

func newPortfolioGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "greeks",
		Aliases: []string{"aggregate"},
		Short:   "Aggregate Greeks across positions",
		Example: `  greeks portfolio greeks --file positions.json
  greeks portfolio greeks --id income`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			positions, err := app.loadPositions(cmd)
			if err != nil {
				return err
			}
			g, err := portfolio.Aggregate(positions)
			if err != nil {
				return err
			}
			logger := logging.FromContext(cmd.Context())
			logger.Debug().Int("positions", g.PositionCount).Float64("delta", g.TotalDelta).Msg("Portfolio aggregated")
			if output.IsJSON() {
				return output.JSON(g)
			}
			printPortfolio(output, g)
			return nil
		},
	}
	addPositionSourceFlags(cmd)
	return cmd
}

func printPortfolio(output *Output, g portfolio.Greeks) {
	table := NewTable(output, "TICKER", "TYPE", "STRIKE", "QTY", "VALUE", "DELTA", "GAMMA", "VEGA", "THETA", "RHO")
	for _, pg := range g.Positions {
		p := pg.Position
		table.AddRow(
			p.Ticker,
			string(p.Spec.Kind),
			fmt.Sprintf("%g", p.Spec.Strike),
			fmt.Sprintf("%+d", p.Quantity),
			FormatMoney(pg.Greeks.Price),
			FormatGreek(pg.Greeks.Delta),
			FormatGreek(pg.Greeks.Gamma),
			FormatGreek(pg.Greeks.Vega),
			FormatGreek(pg.Greeks.Theta),
			FormatGreek(pg.Greeks.Rho),
		)
	}
	table.AddRow("TOTAL", "", "", "",
		FormatMoney(g.TotalValue),
		FormatGreek(g.TotalDelta),
		FormatGreek(g.TotalGamma),
		FormatGreek(g.TotalVega),
		FormatGreek(g.TotalTheta),
		FormatGreek(g.TotalRho),
	)
	table.Render()
	output.Println()
	output.Dim("%d positions", g.PositionCount)
}

func newPortfolioHedgeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hedge",
		Short: "Underlying shares needed to neutralise a Greek",
		Example: `  greeks portfolio hedge --file positions.json --greek delta
  greeks portfolio hedge --id income --spot 101.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			positions, err := app.loadPositions(cmd)
			if err != nil {
				return err
			}
			g, err := portfolio.Aggregate(positions)
			if err != nil {
				return err
			}

			spot, _ := cmd.Flags().GetFloat64("spot")
			if !cmd.Flags().Changed("spot") {
				if len(positions) == 0 {
					return apperrors.NewValidationError("spot", "", "required for an empty portfolio", apperrors.ErrInputValidation)
				}
				spot = positions[0].Market.Spot
				for _, p := range positions[1:] {
					if p.Ticker != positions[0].Ticker {
						output.Warning("Positions span several underlyings; hedging at %s spot %g", positions[0].Ticker, spot)
						break
					}
				}
			}

			var hedges []portfolio.HedgeResult
			if name, _ := cmd.Flags().GetString("greek"); name != "" {
				h, err := portfolio.HedgeRatio(g, models.GreekName(name), spot)
				if err != nil {
					return err
				}
				hedges = []portfolio.HedgeResult{h}
			} else if hedges, err = portfolio.HedgeAll(g, spot); err != nil {
				return err
			}
			for _, h := range hedges {
				logging.LogHedge(logging.FromContext(cmd.Context()), string(h.TargetGreek), h.CurrentValue, h.HedgeSharesNeeded)
			}

			if output.IsJSON() {
				return output.JSON(hedges)
			}
			table := NewTable(output, "GREEK", "EXPOSURE", "SHARES", "COST")
			for _, h := range hedges {
				table.AddRow(
					string(h.TargetGreek),
					FormatGreek(h.CurrentValue),
					fmt.Sprintf("%+.2f", h.HedgeSharesNeeded),
					output.Signed(-h.HedgeCostApprox, FormatPnL(h.HedgeCostApprox)),
				)
			}
			table.Render()
			output.Println()
			output.Dim("Spot %g; positive shares are bought, negative sold", spot)
			return nil
		},
	}
	addPositionSourceFlags(cmd)
	cmd.Flags().StringP("greek", "g", "", "Greek to hedge: delta, gamma, vega, theta or rho (default all)")
	cmd.Flags().Float64("spot", 0, "underlying price for the hedge (default first position's)")
	return cmd
}

func newPortfolioSaveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Store positions under a portfolio ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return apperrors.NewValidationError("file", "", "is required", apperrors.ErrInputValidation)
			}
			positions, err := app.loadPositions(cmd)
			if err != nil {
				return err
			}
			// Reject positions that cannot be priced before persisting them.
			if _, err := portfolio.Aggregate(positions); err != nil {
				return err
			}

			s, err := app.store()
			if err != nil {
				return err
			}
			if err := s.SavePositions(cmd.Context(), args[0], positions); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": args[0], "positions": len(positions)})
			}
			output.Success("✓ Saved %d positions as %s", len(positions), args[0])
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "positions JSON file (- for stdin)")
	return cmd
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "show [id]",
		Aliases: []string{"list"},
		Short:   "List saved portfolios or show one",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.store()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				ids, err := s.ListPortfolios(cmd.Context())
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(ids)
				}
				if len(ids) == 0 {
					output.Info("No saved portfolios")
					return nil
				}
				for _, id := range ids {
					output.Println(id)
				}
				return nil
			}

			positions, err := s.GetPositions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			g, err := portfolio.Aggregate(positions)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(g)
			}
			output.Bold("Portfolio %s", args[0])
			output.Println()
			printPortfolio(output, g)
			return nil
		},
	}
}
