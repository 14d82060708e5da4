package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Greeks Simulator Configuration

[pricing]
# PnL surface shock ranges as fractions of spot and volatility
underlying_range = [-0.20, 0.20]
iv_range = [-0.30, 0.30]
# Grid points per axis
steps = 25
# Worker goroutines for grid evaluation (0 = one per CPU)
workers = 0

[scenario]
price_shocks = [-0.10, -0.05, 0.0, 0.05, 0.10]
iv_shocks = [-0.20, 0.0, 0.20]
# Calendar days to move forward before revaluing
days_forward = 1
# Horizon of the theta decay schedule
decay_days = 30

[backtest]
initial_capital = 10000.0
risk_free_rate = 0.05
volatility = 0.25
# "constant" or "historical" (trailing realised volatility)
volatility_model = "constant"
vol_lookback = 20
# Annual rate subtracted from returns in the Sharpe ratio
sharpe_risk_free_rate = 0.02
periods_per_year = 252
# Strike distance for spreads, strangles, condors and butterflies
width = 5.0

[data]
# Price source: "synthetic", "csv" or "sqlite"
source = "synthetic"
# Defaults to greeks.db next to this file
db_path = ""
# Directory of <TICKER>.csv files; defaults to ./data next to this file
csv_dir = ""
# Synthetic random walk
seed = 42
start_price = 100.0
daily_drift = 0.0005
daily_vol = 0.02

[logging]
# debug, info, warn, error
level = "info"
file = false
file_path = ""
max_size = 50
max_backups = 5
max_age = 30

[ui]
color_enabled = true
date_format = "2006-01-02"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, FileName+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
