// Package config provides configuration management for the simulator.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"greeks-simulator/internal/backtest"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/logging"
	"greeks-simulator/internal/marketdata"
	"greeks-simulator/internal/pricing"
	"greeks-simulator/internal/scenario"
)

// FileName is the base name of the configuration file.
const FileName = "config"

// Data sources.
const (
	SourceSynthetic = "synthetic"
	SourceCSV       = "csv"
	SourceSQLite    = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	UI       UIConfig       `mapstructure:"ui"`

	Dir string `mapstructure:"-"` // directory the file was loaded from
}

// PricingConfig holds PnL surface defaults.
type PricingConfig struct {
	UnderlyingRange []float64 `mapstructure:"underlying_range"`
	IVRange         []float64 `mapstructure:"iv_range"`
	Steps           int       `mapstructure:"steps"`
	Workers         int       `mapstructure:"workers"` // 0 = GOMAXPROCS
}

// ScenarioConfig holds scenario sweep defaults.
type ScenarioConfig struct {
	PriceShocks []float64 `mapstructure:"price_shocks"`
	IVShocks    []float64 `mapstructure:"iv_shocks"`
	DaysForward int       `mapstructure:"days_forward"`
	DecayDays   int       `mapstructure:"decay_days"`
}

// BacktestConfig holds backtest defaults.
type BacktestConfig struct {
	InitialCapital     float64 `mapstructure:"initial_capital"`
	RiskFreeRate       float64 `mapstructure:"risk_free_rate"`
	Volatility         float64 `mapstructure:"volatility"`
	VolatilityModel    string  `mapstructure:"volatility_model"`
	VolLookback        int     `mapstructure:"vol_lookback"`
	SharpeRiskFreeRate float64 `mapstructure:"sharpe_risk_free_rate"`
	PeriodsPerYear     int     `mapstructure:"periods_per_year"`
	Width              float64 `mapstructure:"width"`
}

// DataConfig selects and parameterises the price-series provider.
type DataConfig struct {
	Source     string  `mapstructure:"source"`
	DBPath     string  `mapstructure:"db_path"`
	CSVDir     string  `mapstructure:"csv_dir"`
	Seed       int64   `mapstructure:"seed"`
	StartPrice float64 `mapstructure:"start_price"`
	DailyDrift float64 `mapstructure:"daily_drift"`
	DailyVol   float64 `mapstructure:"daily_vol"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/greeks-simulator"
	}
	return filepath.Join(home, ".config", "greeks-simulator")
}

func setDefaults(v *viper.Viper) {
	surface := pricing.DefaultSurfaceConfig()
	v.SetDefault("pricing.underlying_range", []float64{surface.UnderlyingRange[0], surface.UnderlyingRange[1]})
	v.SetDefault("pricing.iv_range", []float64{surface.IVRange[0], surface.IVRange[1]})
	v.SetDefault("pricing.steps", surface.Steps)
	v.SetDefault("pricing.workers", 0)

	v.SetDefault("scenario.price_shocks", []float64{-0.10, -0.05, 0, 0.05, 0.10})
	v.SetDefault("scenario.iv_shocks", []float64{-0.20, 0, 0.20})
	v.SetDefault("scenario.days_forward", scenario.DefaultDaysForward)
	v.SetDefault("scenario.decay_days", scenario.DefaultDecayDays)

	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.risk_free_rate", 0.05)
	v.SetDefault("backtest.volatility", 0.25)
	v.SetDefault("backtest.volatility_model", backtest.VolConstant)
	v.SetDefault("backtest.vol_lookback", backtest.DefaultVolLookback)
	v.SetDefault("backtest.sharpe_risk_free_rate", backtest.DefaultSharpeRiskFreeRate)
	v.SetDefault("backtest.periods_per_year", backtest.DefaultPeriodsPerYear)
	v.SetDefault("backtest.width", backtest.DefaultWidth)

	synth := marketdata.DefaultSyntheticConfig()
	v.SetDefault("data.source", SourceSynthetic)
	v.SetDefault("data.db_path", "")
	v.SetDefault("data.csv_dir", "")
	v.SetDefault("data.seed", synth.Seed)
	v.SetDefault("data.start_price", synth.StartPrice)
	v.SetDefault("data.daily_drift", synth.DailyDrift)
	v.SetDefault("data.daily_vol", synth.DailyVol)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")
}

// Default returns the built-in configuration rooted at configDir.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults are well-typed; Unmarshal cannot fail on them.
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	cfg.resolvePaths()
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(FileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w: %v", apperrors.ErrConfigInvalid, err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w: %v", apperrors.ErrConfigInvalid, err)
	}
	cfg.Dir = configDir

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Path returns the location of the configuration file.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, FileName+".toml")
}

func (c *Config) resolvePaths() {
	if c.Data.DBPath == "" {
		c.Data.DBPath = filepath.Join(c.Dir, "greeks.db")
	}
	if c.Data.CSVDir == "" {
		c.Data.CSVDir = filepath.Join(c.Dir, "data")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.Dir, "logs", "greeks.log")
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GREEKS_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("GREEKS_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv("GREEKS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GREEKS_RISK_FREE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GREEKS_RISK_FREE_RATE=%q: %w", v, apperrors.ErrConfigInvalid)
		}
		cfg.Backtest.RiskFreeRate = rate
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Pricing.UnderlyingRange) != 2 || len(c.Pricing.IVRange) != 2 {
		return invalid("pricing.underlying_range and pricing.iv_range must have two elements")
	}
	if c.Pricing.IVRange[0] <= -1 {
		return invalid("pricing.iv_range lower bound must be above -1")
	}
	if c.Pricing.UnderlyingRange[0] <= -1 {
		return invalid("pricing.underlying_range lower bound must be above -1")
	}
	if c.Pricing.Steps < 1 {
		return invalid("pricing.steps must be at least 1")
	}
	if c.Pricing.Workers < 0 {
		return invalid("pricing.workers must be non-negative")
	}

	if c.Scenario.DaysForward < 0 || c.Scenario.DecayDays < 0 {
		return invalid("scenario.days_forward and scenario.decay_days must be non-negative")
	}

	b := c.Backtest
	if !(b.InitialCapital > 0) {
		return invalid("backtest.initial_capital must be positive")
	}
	if !(b.Volatility > 0) {
		return invalid("backtest.volatility must be positive")
	}
	if math.IsNaN(b.RiskFreeRate) || math.IsInf(b.RiskFreeRate, 0) {
		return invalid("backtest.risk_free_rate must be finite")
	}
	if b.VolatilityModel != backtest.VolConstant && b.VolatilityModel != backtest.VolHistorical {
		return invalid("backtest.volatility_model must be %q or %q", backtest.VolConstant, backtest.VolHistorical)
	}
	if b.VolLookback < 2 {
		return invalid("backtest.vol_lookback must be at least 2")
	}
	if b.PeriodsPerYear < 1 {
		return invalid("backtest.periods_per_year must be positive")
	}
	if b.Width < 0 {
		return invalid("backtest.width must be non-negative")
	}

	switch c.Data.Source {
	case SourceSynthetic, SourceCSV, SourceSQLite:
	default:
		return invalid("data.source must be synthetic, csv or sqlite (got %q)", c.Data.Source)
	}
	if !(c.Data.StartPrice > 0) || c.Data.DailyVol < 0 {
		return invalid("data.start_price must be positive and data.daily_vol non-negative")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// SurfaceConfig returns the PnL surface settings.
func (c *Config) SurfaceConfig() pricing.SurfaceConfig {
	return pricing.SurfaceConfig{
		UnderlyingRange: [2]float64{c.Pricing.UnderlyingRange[0], c.Pricing.UnderlyingRange[1]},
		IVRange:         [2]float64{c.Pricing.IVRange[0], c.Pricing.IVRange[1]},
		Steps:           c.Pricing.Steps,
	}
}

// SyntheticConfig returns the synthetic generator settings.
func (c *Config) SyntheticConfig() marketdata.SyntheticConfig {
	return marketdata.SyntheticConfig{
		StartPrice: c.Data.StartPrice,
		DailyDrift: c.Data.DailyDrift,
		DailyVol:   c.Data.DailyVol,
		Seed:       c.Data.Seed,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    true,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   true,
	}
}

// BacktestDefaults fills a backtest configuration with the configured
// capital, rates and volatility model.
func (c *Config) BacktestDefaults() backtest.Config {
	cfg := backtest.NewConfig(backtest.Strategy{}, c.Backtest.InitialCapital)
	cfg.RiskFreeRate = c.Backtest.RiskFreeRate
	cfg.Volatility = c.Backtest.Volatility
	cfg.SharpeRiskFreeRate = c.Backtest.SharpeRiskFreeRate
	if c.Backtest.VolatilityModel != "" {
		cfg.VolatilityModel = c.Backtest.VolatilityModel
	}
	if c.Backtest.VolLookback > 0 {
		cfg.VolLookback = c.Backtest.VolLookback
	}
	if c.Backtest.PeriodsPerYear > 0 {
		cfg.PeriodsPerYear = c.Backtest.PeriodsPerYear
	}
	return cfg
}
