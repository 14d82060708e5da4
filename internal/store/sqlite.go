package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"greeks-simulator/internal/backtest"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily OHLCV history per ticker
	CREATE TABLE IF NOT EXISTS historical_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, date)
	);

	-- Option positions grouped by portfolio
	CREATE TABLE IF NOT EXISTS portfolio_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		underlying_price REAL NOT NULL,
		risk_free_rate REAL NOT NULL,
		dividend_yield REAL NOT NULL DEFAULT 0,
		volatility REAL NOT NULL,
		time_to_expiration REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(portfolio_id, seq)
	);

	-- Completed backtest runs
	CREATE TABLE IF NOT EXISTS backtest_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		strategy TEXT NOT NULL,
		config TEXT NOT NULL,
		total_return REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		win_rate REAL NOT NULL,
		final_equity REAL NOT NULL,
		trades TEXT NOT NULL,
		equity_curve TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_historical_ticker_date ON historical_data(ticker, date);
	CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON portfolio_positions(portfolio_id);
	CREATE INDEX IF NOT EXISTS idx_backtest_ticker ON backtest_results(ticker, strategy);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func normTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrDatabaseError, err)
}

// ============================================================================
// Historical Prices
// ============================================================================

// SaveCandles upserts daily candles for ticker.
func (s *SQLiteStore) SaveCandles(ctx context.Context, ticker string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO historical_data (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbErr("failed to prepare statement", err)
	}
	defer stmt.Close()

	ticker = normTicker(ticker)
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, ticker, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return dbErr("failed to insert candle", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbErr("failed to commit transaction", err)
	}
	return nil
}

// SavePrices stores close-only samples; open, high and low equal the close.
func (s *SQLiteStore) SavePrices(ctx context.Context, ticker string, samples []models.PriceSample) error {
	candles := make([]models.Candle, len(samples))
	for i, p := range samples {
		candles[i] = models.Candle{Timestamp: p.Date, Open: p.Price, High: p.Price, Low: p.Price, Close: p.Price}
	}
	return s.SaveCandles(ctx, ticker, candles)
}

// GetCandles retrieves candles in [from, to]; zero bounds are open.
func (s *SQLiteStore) GetCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	query := "SELECT date, open, high, low, close, volume FROM historical_data WHERE ticker = ?"
	args := []interface{}{normTicker(ticker)}

	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("failed to query prices", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, dbErr("failed to scan candle", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("error iterating candles", err)
	}
	return candles, nil
}

// GetPriceSeries returns stored closes; it satisfies marketdata.Provider.
func (s *SQLiteStore) GetPriceSeries(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSample, error) {
	candles, err := s.GetCandles(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, apperrors.NewDataError("prices", normTicker(ticker), "no stored prices in range", apperrors.ErrDataNotFound)
	}
	samples := make([]models.PriceSample, len(candles))
	for i, c := range candles {
		samples[i] = c.Sample()
	}
	return samples, nil
}

// ListTickers summarises the stored history of every ticker.
func (s *SQLiteStore) ListTickers(ctx context.Context) ([]TickerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, COUNT(*), MIN(date), MAX(date)
		FROM historical_data
		GROUP BY ticker
		ORDER BY ticker ASC
	`)
	if err != nil {
		return nil, dbErr("failed to list tickers", err)
	}
	defer rows.Close()

	var out []TickerSummary
	for rows.Next() {
		var ts TickerSummary
		var first, last string
		if err := rows.Scan(&ts.Ticker, &ts.Count, &first, &last); err != nil {
			return nil, dbErr("failed to scan ticker summary", err)
		}
		// Aggregates lose the column type, so dates come back as text.
		ts.First = parseDBTime(first)
		ts.Last = parseDBTime(last)
		out = append(out, ts)
	}
	return out, rows.Err()
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDBTime(s string) time.Time {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range dbTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ============================================================================
// Portfolio Positions
// ============================================================================

// SavePositions replaces the stored positions of portfolioID.
func (s *SQLiteStore) SavePositions(ctx context.Context, portfolioID string, positions []models.Position) error {
	if strings.TrimSpace(portfolioID) == "" {
		return apperrors.NewValidationError("portfolio_id", portfolioID, "must not be empty", apperrors.ErrInputValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_positions WHERE portfolio_id = ?`, portfolioID); err != nil {
		return dbErr("failed to clear portfolio", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio_positions (portfolio_id, seq, ticker, strike, option_type, quantity,
			underlying_price, risk_free_rate, dividend_yield, volatility, time_to_expiration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbErr("failed to prepare statement", err)
	}
	defer stmt.Close()

	for i, p := range positions {
		_, err := stmt.ExecContext(ctx, portfolioID, i, p.Ticker, p.Spec.Strike, string(p.Spec.Kind), p.Quantity,
			p.Market.Spot, p.Market.Rate, p.Market.Dividend, p.Market.Volatility, p.Market.TimeToExpiry)
		if err != nil {
			return dbErr("failed to insert position", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbErr("failed to commit transaction", err)
	}
	return nil
}

// GetPositions returns a portfolio's positions in saved order.
func (s *SQLiteStore) GetPositions(ctx context.Context, portfolioID string) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, strike, option_type, quantity, underlying_price, risk_free_rate,
			dividend_yield, volatility, time_to_expiration
		FROM portfolio_positions
		WHERE portfolio_id = ?
		ORDER BY seq ASC
	`, portfolioID)
	if err != nil {
		return nil, dbErr("failed to query positions", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var kind string
		if err := rows.Scan(&p.Ticker, &p.Spec.Strike, &kind, &p.Quantity, &p.Market.Spot, &p.Market.Rate,
			&p.Market.Dividend, &p.Market.Volatility, &p.Market.TimeToExpiry); err != nil {
			return nil, dbErr("failed to scan position", err)
		}
		p.Spec.Kind = models.OptionKind(kind)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("error iterating positions", err)
	}
	if len(positions) == 0 {
		return nil, apperrors.NewDataError("portfolio", portfolioID, "no positions stored", apperrors.ErrDataNotFound)
	}
	return positions, nil
}

// ListPortfolios lists stored portfolio IDs.
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT portfolio_id FROM portfolio_positions ORDER BY portfolio_id ASC
	`)
	if err != nil {
		return nil, dbErr("failed to list portfolios", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr("failed to scan portfolio id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// Backtest Results
// ============================================================================

// SaveBacktestResult stores a finished run and returns its ID.
func (s *SQLiteStore) SaveBacktestResult(ctx context.Context, cfg backtest.Config, result *backtest.Result) (int64, error) {
	if result == nil {
		return 0, apperrors.NewValidationError("result", nil, "must not be nil", apperrors.ErrInputValidation)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("encoding config: %w", err)
	}
	tradesJSON, err := json.Marshal(result.Trades)
	if err != nil {
		return 0, fmt.Errorf("encoding trades: %w", err)
	}
	curveJSON, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return 0, fmt.Errorf("encoding equity curve: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_results (ticker, strategy, config, total_return, max_drawdown, sharpe_ratio,
			win_rate, final_equity, trades, equity_curve, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, normTicker(result.Ticker), result.Strategy, string(cfgJSON), result.TotalReturn, result.MaxDrawdown,
		result.SharpeRatio, result.WinRate, result.FinalEquity, string(tradesJSON), string(curveJSON), time.Now().UTC())
	if err != nil {
		return 0, dbErr("failed to save backtest result", err)
	}
	return res.LastInsertId()
}

const backtestColumns = `id, created_at, config, ticker, strategy, total_return, max_drawdown, sharpe_ratio,
	win_rate, final_equity, trades, equity_curve`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBacktest(row rowScanner) (*BacktestRecord, error) {
	rec := &BacktestRecord{Result: &backtest.Result{}}
	var cfgJSON, tradesJSON, curveJSON string
	r := rec.Result
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &cfgJSON, &r.Ticker, &r.Strategy, &r.TotalReturn, &r.MaxDrawdown,
		&r.SharpeRatio, &r.WinRate, &r.FinalEquity, &tradesJSON, &curveJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return nil, fmt.Errorf("decoding config of run %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(tradesJSON), &r.Trades); err != nil {
		return nil, fmt.Errorf("decoding trades of run %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(curveJSON), &r.EquityCurve); err != nil {
		return nil, fmt.Errorf("decoding equity curve of run %d: %w", rec.ID, err)
	}
	r.InitialCapital = rec.Config.InitialCapital
	return rec, nil
}

// GetBacktestResult loads one stored run.
func (s *SQLiteStore) GetBacktestResult(ctx context.Context, id int64) (*BacktestRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+backtestColumns+" FROM backtest_results WHERE id = ?", id)
	rec, err := scanBacktest(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("backtest", fmt.Sprint(id), "no such run", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, dbErr("failed to get backtest result", err)
	}
	return rec, nil
}

// ListBacktestResults returns stored runs, newest first.
func (s *SQLiteStore) ListBacktestResults(ctx context.Context, filter BacktestFilter) ([]BacktestRecord, error) {
	query := "SELECT " + backtestColumns + " FROM backtest_results WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, normTicker(filter.Ticker))
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("failed to query backtest results", err)
	}
	defer rows.Close()

	var out []BacktestRecord
	for rows.Next() {
		rec, err := scanBacktest(rows)
		if err != nil {
			return nil, dbErr("failed to scan backtest result", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
