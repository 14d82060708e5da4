package cli

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type workflow struct {
	Title    string   `json:"title"`
	Commands []string `json:"commands"`
}

var workflows = []workflow{
	{
		Title: "Price an Option",
		Commands: []string{
			"greeks calc greeks --spot 100 --strike 105 --days 30 --vol 0.22   # Price and Greeks",
			"greeks calc surface --spot 100 --strike 105 --days 30 --steps 9   # PnL grid",
			"greeks calc scenarios --spot 100 --strike 105 --price-shocks=-0.05,0.05",
			"greeks calc theta-decay --spot 100 --strike 105 --days 30         # Day-by-day decay",
		},
	},
	{
		Title: "Hedge a Book",
		Commands: []string{
			"greeks portfolio greeks --file book.json          # Aggregate Greeks",
			"greeks portfolio hedge --file book.json --greek delta",
			"greeks portfolio save book --file book.json       # Keep it in the database",
			"greeks portfolio hedge --id book --spot 101.25    # Re-hedge at a new spot",
		},
	},
	{
		Title: "Backtest on Synthetic Prices",
		Commands: []string{
			"greeks backtest strategies                        # Named strategies",
			"greeks backtest run --strategy iron_condor --strike 100 --start 2024-01-02 --expiration 2024-02-16 --chart",
			"greeks backtest compare --strike 100 --start 2024-01-02 --expiration 2024-02-16",
		},
	},
	{
		Title: "Backtest on Your Own Data",
		Commands: []string{
			"greeks data import spy.csv --ticker SPY           # date,open,high,low,close,volume",
			"greeks data show SPY --source sqlite              # Check the series",
			"greeks backtest run --ticker SPY --source sqlite --leg short:call:10 --leg long:call:20 --strike 470 --start 2024-01-02 --expiration 2024-03-15 --save",
			"greeks backtest history --ticker SPY              # Saved runs",
			"greeks backtest show 1                            # Result and equity curve",
		},
	},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(workflows)
			}

			output.Bold("Common Workflow Examples")
			output.Println()

			cyan := output.paint(color.New(color.FgCyan))
			faint := output.paint(color.New(color.Faint))
			for _, wf := range workflows {
				output.Bold(wf.Title)
				for _, c := range wf.Commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", cyan.Sprint(strings.TrimSpace(parts[0])), faint.Sprint(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", cyan.Sprint(c))
					}
				}
				output.Println()
			}
			return nil
		},
	}
}
