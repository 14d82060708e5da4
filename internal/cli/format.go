// Package cli provides the command-line interface for the simulator.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "greeks-simulator/internal/errors"
)

// FormatMoney formats an amount with thousands separators and 2 decimals.
func FormatMoney(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Sprint(amount)
	}
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.SplitN(str, ".", 2)
	result := groupThousands(parts[0]) + "." + parts[1]
	if negative && result != "0.00" {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatMoney(pnl)
	if pnl > 0 && formatted != "0.00" {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a fraction as a signed percentage: 0.0123 -> +1.23%.
func FormatPercent(fraction float64) string {
	pct := fraction * 100
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, pct)
}

// FormatGreek formats a sensitivity with 4 decimals.
func FormatGreek(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// ParseDate parses YYYY-MM-DD; an empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseDateList parses comma-separated YYYY-MM-DD dates.
func ParseDateList(s string) ([]time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]time.Time, 0, len(fields))
	for _, f := range fields {
		d, err := ParseDate(f)
		if err != nil || d.IsZero() {
			return nil, apperrors.NewValidationError("dates", s, fmt.Sprintf("invalid date %q", f), apperrors.ErrInputValidation)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseFloatList parses "-0.1,0,0.1" into numbers.
func ParseFloatList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.NewValidationError("list", s, fmt.Sprintf("invalid number %q", f), apperrors.ErrInputValidation)
		}
		out = append(out, v)
	}
	return out, nil
}

// TruncateString truncates a string to maxLen with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
