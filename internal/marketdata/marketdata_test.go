package marketdata

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSyntheticProvider_Deterministic(t *testing.T) {
	p := NewSyntheticProvider(DefaultSyntheticConfig())
	end := day0.AddDate(0, 0, 29)

	a, err := p.GetPriceSeries(context.Background(), "SPY", day0, end)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.GetPriceSeries(context.Background(), "SPY", day0, end)

	if len(a) != 30 {
		t.Fatalf("expected one sample per day in [start, end], got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between runs", i)
		}
		if a[i].Price <= 0 {
			t.Errorf("sample %d not positive: %v", i, a[i].Price)
		}
	}
	if !a[0].Date.Equal(day0) || !a[29].Date.Equal(day0.AddDate(0, 0, 29)) {
		t.Errorf("unexpected date span %v..%v", a[0].Date, a[29].Date)
	}
	if err := ValidateSeries(a); err != nil {
		t.Errorf("generated series invalid: %v", err)
	}
}

func TestSyntheticProvider_EmptyRange(t *testing.T) {
	p := NewSyntheticProvider(DefaultSyntheticConfig())
	if _, err := p.GetPriceSeries(context.Background(), "SPY", day0, day0.AddDate(0, 0, -1)); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected data not found, got %v", err)
	}
	if got, _ := p.GetPriceSeries(context.Background(), "SPY", day0, day0); len(got) != 1 {
		t.Errorf("single-day range should hold one sample, got %d", len(got))
	}
	if _, err := p.GetPriceSeries(context.Background(), "SPY", time.Time{}, day0); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFlat(t *testing.T) {
	s := Flat(day0, 5, 42)
	if len(s) != 5 {
		t.Fatalf("len = %d", len(s))
	}
	for _, x := range s {
		if x.Price != 42 {
			t.Errorf("price = %v", x.Price)
		}
	}
	if vol, ok := RealizedVolatility(s, 4, 20); !ok || vol != 0 {
		t.Errorf("flat series vol = %v, %v", vol, ok)
	}
}

func TestValidateSeries(t *testing.T) {
	tests := []struct {
		name    string
		samples []models.PriceSample
		wantErr bool
	}{
		{"empty", nil, true},
		{"ok", Flat(day0, 3, 10), false},
		{"non positive", []models.PriceSample{{Date: day0, Price: 0}}, true},
		{"duplicate date", []models.PriceSample{{Date: day0, Price: 1}, {Date: day0, Price: 2}}, true},
		{"out of order", []models.PriceSample{{Date: day0.AddDate(0, 0, 1), Price: 1}, {Date: day0, Price: 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeries(tt.samples)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidPriceSeries) {
				t.Errorf("expected invalid price series, got %v", err)
			}
		})
	}
}

func TestStatic_FilterRange(t *testing.T) {
	s := Static(Flat(day0, 10, 100))
	got, err := s.GetPriceSeries(context.Background(), "X", day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("inclusive range should hold 3 samples, got %d", len(got))
	}
	if _, err := s.GetPriceSeries(context.Background(), "X", day0.AddDate(1, 0, 0), time.Time{}); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected data not found, got %v", err)
	}
}

func TestFromSeries(t *testing.T) {
	dates := []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)}
	p := FromSeries([]float64{100, 101, 99.5}, dates)

	got, err := p.GetPriceSeries(context.Background(), "X", day0.AddDate(0, 0, 1), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Price != 101 || !got[1].Date.Equal(dates[2]) {
		t.Errorf("unexpected samples: %+v", got)
	}

	mismatched := FromSeries([]float64{100, 101}, dates)
	if _, err := mismatched.GetPriceSeries(context.Background(), "X", time.Time{}, time.Time{}); !errors.Is(err, apperrors.ErrInvalidPriceSeries) {
		t.Errorf("expected invalid price series, got %v", err)
	}
}

func TestCSV_RoundTripThroughProvider(t *testing.T) {
	dir := t.TempDir()
	candles := []models.Candle{
		{Timestamp: day0.AddDate(0, 0, 1), Open: 101, High: 102, Low: 100, Close: 101.5, Volume: 900},
		{Timestamp: day0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
	}
	var buf bytes.Buffer
	if err := WriteCandles(&buf, candles); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "date,open,high,low,close,volume") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	if err := os.WriteFile(filepath.Join(dir, "SPY.csv"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewCSVProvider(dir)
	got, err := p.GetPriceSeries(context.Background(), "spy", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if !got[0].Date.Equal(day0) || got[0].Price != 100.5 {
		t.Errorf("samples should be sorted by date: %+v", got)
	}
}

func TestReadCandles_CloseOnly(t *testing.T) {
	in := "date,close\n2024-01-02,10\n2024-01-03,11\n"
	candles, err := ReadCandles(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 || candles[1].Open != 11 || candles[1].High != 11 {
		t.Errorf("missing OHLC should default to close: %+v", candles)
	}

	_, err = ReadCandles(strings.NewReader("date,close\n01/02/2024,10\n"))
	if !errors.Is(err, apperrors.ErrInvalidPriceSeries) {
		t.Errorf("bad date should be rejected, got %v", err)
	}
}

func TestCSVProvider_MissingFile(t *testing.T) {
	p := NewCSVProvider(t.TempDir())
	if _, err := p.GetPriceSeries(context.Background(), "NOPE", time.Time{}, time.Time{}); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected data not found, got %v", err)
	}
}

func TestRealizedVolatility(t *testing.T) {
	// Alternating +1%/-1% moves.
	samples := make([]models.PriceSample, 41)
	price := 100.0
	for i := range samples {
		samples[i] = models.PriceSample{Date: day0.AddDate(0, 0, i), Price: price}
		if i%2 == 0 {
			price *= 1.01
		} else {
			price /= 1.01
		}
	}
	vol, ok := RealizedVolatility(samples, 40, 20)
	if !ok {
		t.Fatal("expected enough history")
	}
	r := math.Log(1.01)
	// 20 returns, mean 0, each |r|: sample std = r*sqrt(20/19).
	want := r * math.Sqrt(20.0/19.0) * math.Sqrt(TradingDaysPerYear)
	if math.Abs(vol-want) > 1e-12 {
		t.Errorf("vol = %v, want %v", vol, want)
	}

	if _, ok := RealizedVolatility(samples, 1, 20); ok {
		t.Error("a single return should not be enough")
	}
}
