package backtest

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// TradeRow is the flat CSV form of a Trade.
type TradeRow struct {
	Strategy   string  `csv:"strategy"`
	EntryDate  string  `csv:"entry_date"`
	ExitDate   string  `csv:"exit_date"`
	EntrySpot  float64 `csv:"entry_spot"`
	ExitSpot   float64 `csv:"exit_spot"`
	EntryValue float64 `csv:"entry_value"`
	ExitValue  float64 `csv:"exit_value"`
	PnL        float64 `csv:"pnl"`
	Reason     string  `csv:"reason"`
	Legs       int     `csv:"legs"`
}

// EquityRow is the flat CSV form of an EquityPoint.
type EquityRow struct {
	Date   string  `csv:"date"`
	Spot   float64 `csv:"spot"`
	Equity float64 `csv:"equity"`
}

const csvDateLayout = "2006-01-02"

// WriteTradesCSV writes one row per trade with a header.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	rows := make([]*TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, &TradeRow{
			Strategy:   t.Strategy,
			EntryDate:  t.EntryDate.Format(csvDateLayout),
			ExitDate:   t.ExitDate.Format(csvDateLayout),
			EntrySpot:  t.EntrySpot,
			ExitSpot:   t.ExitSpot,
			EntryValue: t.EntryValue,
			ExitValue:  t.ExitValue,
			PnL:        t.PnL,
			Reason:     t.Reason,
			Legs:       len(t.Legs),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing trades: %w", err)
	}
	return nil
}

// WriteEquityCSV writes the equity curve with a header.
func WriteEquityCSV(w io.Writer, curve []EquityPoint) error {
	rows := make([]*EquityRow, 0, len(curve))
	for _, p := range curve {
		rows = append(rows, &EquityRow{
			Date:   p.Date.Format(csvDateLayout),
			Spot:   p.Spot,
			Equity: p.Equity,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing equity curve: %w", err)
	}
	return nil
}
