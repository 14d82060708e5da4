package marketdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

// DateLayout is the date format used in CSV files.
const DateLayout = "2006-01-02"

// CSVRow is one line of a daily OHLCV price file. Only date and close are
// required; missing OHLC columns default to close.
type CSVRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open,omitempty"`
	High   float64 `csv:"high,omitempty"`
	Low    float64 `csv:"low,omitempty"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume,omitempty"`
}

// Candle converts the row, parsing its date.
func (r CSVRow) Candle() (models.Candle, error) {
	ts, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return models.Candle{}, fmt.Errorf("parsing date %q: %w", r.Date, err)
	}
	c := models.Candle{Timestamp: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	if c.Open == 0 {
		c.Open = c.Close
	}
	if c.High == 0 {
		c.High = c.Close
	}
	if c.Low == 0 {
		c.Low = c.Close
	}
	return c, nil
}

// ReadCandles parses a CSV stream with a header row.
func ReadCandles(r io.Reader) ([]models.Candle, error) {
	var rows []*CSVRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding csv: %w", err)
	}
	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := row.Candle()
		if err != nil {
			return nil, apperrors.NewValidationError("date", row.Date, fmt.Sprintf("row %d: %v", i+1, err), apperrors.ErrInvalidPriceSeries)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// WriteCandles encodes candles as CSV with a header row.
func WriteCandles(w io.Writer, candles []models.Candle) error {
	rows := make([]*CSVRow, len(candles))
	for i, c := range candles {
		rows[i] = &CSVRow{
			Date:   c.Timestamp.Format(DateLayout),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return gocsv.Marshal(rows, w)
}

// CSVProvider reads <dir>/<TICKER>.csv files.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// Path returns the file a ticker is read from.
func (p *CSVProvider) Path(ticker string) string {
	return filepath.Join(p.dir, strings.ToUpper(ticker)+".csv")
}

func (p *CSVProvider) GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
	f, err := os.Open(p.Path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("prices", ticker, "csv file not found", apperrors.ErrDataNotFound)
		}
		return nil, apperrors.NewDataError("prices", ticker, "opening csv", err)
	}
	defer f.Close()

	candles, err := ReadCandles(f)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := make([]models.PriceSample, 0, len(candles))
	for _, c := range candles {
		samples = append(samples, c.Sample())
	}
	SortByDate(samples)
	samples = FilterRange(samples, from, to)
	if len(samples) == 0 {
		return nil, apperrors.NewDataError("prices", ticker, "no samples in range", apperrors.ErrDataNotFound)
	}
	return samples, nil
}
