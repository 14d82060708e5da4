package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if ValidLevel("bogus") || !ValidLevel("warn") {
		t.Error("ValidLevel mismatch")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := WithLogger(context.Background(), logger)

	l := FromContext(ctx)
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("logger from context did not write: %q", buf.String())
	}

	// Nop logger when absent; must not panic.
	nop := FromContext(context.Background())
	nop.Info().Msg("ignored")
}

func TestLogBacktest_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithStrategy(WithTicker(zerolog.New(&buf), "SPY"), "straddle")
	LogBacktest(logger, "SPY", "straddle", 0.01, 1.5, -0.02, 1)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["event"] != "backtest" || entry["ticker"] != "SPY" || entry["strategy"] != "straddle" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["trades"].(float64) != 1 {
		t.Errorf("trades = %v", entry["trades"])
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "warn", Console: true}, &buf)
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Errorf("level filter not applied: %q", out)
	}
}

func TestNewLogger_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "greeks.log")
	logger := newLogger(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1}, nil)
	logger.Info().Str("k", "v").Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("file log missing entry: %q", data)
	}
}
