package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClickHouseConfig locates the backing database.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ClickHouseStore implements Store on the native protocol. Upsert semantics
// come from ReplacingMergeTree keyed by (run_id, symbol, date) with an
// updated_at version column; reads select FINAL so unmerged duplicates
// collapse to the latest version.
type ClickHouseStore struct {
	conn   driver.Conn
	db     string
	logger *zap.Logger
}

// NewClickHouseStore connects and verifies the server is reachable.
func NewClickHouseStore(cfg ClickHouseConfig, logger *zap.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database == "" {
		cfg.Database = "aitrading"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseStore{conn: conn, db: cfg.Database, logger: logger}, nil
}

// Close releases the connection pool.
func (s *ClickHouseStore) Close() error { return s.conn.Close() }

// EnsureSchema creates the tables if missing.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS %db%.runs (
			run_id String,
			symbol String,
			label String,
			status String,
			start_date String,
			end_date String,
			initial_cash Decimal(20,4),
			config_hash String,
			strategy_hash String,
			stop_reason String,
			created_at DateTime64(3),
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY run_id`,
		`CREATE TABLE IF NOT EXISTS %db%.trades (
			run_id String,
			symbol String,
			date String,
			execution_date String,
			signal String,
			quantity Int64,
			price Decimal(20,6),
			effective_price Decimal(20,6),
			leverage Decimal(10,4),
			success UInt8,
			reason String,
			realized_pnl Decimal(20,6),
			cash_after Decimal(20,4),
			total_asset_after Decimal(20,4),
			commission Decimal(20,6),
			stamp_duty Decimal(20,6),
			transfer_fee Decimal(20,6),
			latency_ms Int64,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (run_id, symbol, date)`,
		`CREATE TABLE IF NOT EXISTS %db%.daily_metrics (
			run_id String,
			symbol String,
			date String,
			close Decimal(20,6),
			cash Decimal(20,4),
			position_qty Int64,
			entry_price Decimal(20,6),
			total_asset Decimal(20,4),
			unrealized_pnl Decimal(20,6),
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (run_id, symbol, date)`,
		`CREATE TABLE IF NOT EXISTS %db%.checkpoints (
			run_id String,
			symbol String,
			last_processed_date String,
			t_plus_one_unlock String,
			cooldown_until String,
			recent_buy_days Array(String),
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY run_id`,
		`CREATE TABLE IF NOT EXISTS %db%.cashflows (
			run_id String,
			date String,
			amount Decimal(20,4),
			note String
		) ENGINE = MergeTree ORDER BY (run_id, date)`,
		`CREATE TABLE IF NOT EXISTS %db%.run_errors (
			run_id String,
			date String,
			stage String,
			message String,
			at DateTime64(3)
		) ENGINE = MergeTree ORDER BY (run_id, at)`,
		`CREATE TABLE IF NOT EXISTS %db%.ohlc (
			symbol String,
			date String,
			open Decimal(20,6),
			high Decimal(20,6),
			low Decimal(20,6),
			close Decimal(20,6),
			volume Decimal(24,2),
			source String,
			ingested_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(ingested_at) ORDER BY (symbol, date)`,
	}
	for _, q := range ddl {
		if err := s.conn.Exec(ctx, strings.ReplaceAll(q, "%db%", s.db)); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStore) CreateRun(ctx context.Context, run Run) error {
	now := time.Now()
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.runs
		(run_id, symbol, label, status, start_date, end_date, initial_cash,
		 config_hash, strategy_hash, stop_reason, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`, s.db),
		run.ID, run.Symbol, run.Label, run.Status, run.StartDate, run.EndDate,
		run.InitialCash, run.ConfigHash, run.StrategyHash, run.StopReason, now, now)
}

func (s *ClickHouseStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.conn.QueryRow(ctx, fmt.Sprintf(`SELECT run_id, symbol, label, status,
		start_date, end_date, initial_cash, config_hash, strategy_hash, stop_reason,
		created_at, updated_at
		FROM %s.runs FINAL WHERE run_id = ?`, s.db), runID)
	var run Run
	if err := row.Scan(&run.ID, &run.Symbol, &run.Label, &run.Status,
		&run.StartDate, &run.EndDate, &run.InitialCash, &run.ConfigHash,
		&run.StrategyHash, &run.StopReason, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

func (s *ClickHouseStore) RunStatus(ctx context.Context, runID string) (string, error) {
	row := s.conn.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s.runs FINAL WHERE run_id = ?`, s.db), runID)
	var status string
	if err := row.Scan(&status); err != nil {
		return "", fmt.Errorf("run status %s: %w", runID, err)
	}
	return status, nil
}

func (s *ClickHouseStore) UpdateRunStatus(ctx context.Context, runID, status, stopReason string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	run.Status = status
	if stopReason != "" {
		run.StopReason = stopReason
	}
	now := time.Now()
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.runs
		(run_id, symbol, label, status, start_date, end_date, initial_cash,
		 config_hash, strategy_hash, stop_reason, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`, s.db),
		run.ID, run.Symbol, run.Label, run.Status, run.StartDate, run.EndDate,
		run.InitialCash, run.ConfigHash, run.StrategyHash, run.StopReason,
		run.CreatedAt, now)
}

// ClaimPendingRun is optimistic: it reads the oldest pending run, writes the
// running version, then re-reads to confirm this writer won the merge. Two
// workers racing the same run is tolerable (the loser's work is idempotent),
// but the confirm step makes it rare.
func (s *ClickHouseStore) ClaimPendingRun(ctx context.Context) (Run, bool, error) {
	row := s.conn.QueryRow(ctx, fmt.Sprintf(`SELECT run_id FROM %s.runs FINAL
		WHERE status = ? ORDER BY created_at LIMIT 1`, s.db), StatusPending)
	var runID string
	if err := row.Scan(&runID); err != nil {
		return Run{}, false, nil
	}
	if err := s.UpdateRunStatus(ctx, runID, StatusRunning, ""); err != nil {
		return Run{}, false, err
	}
	status, err := s.RunStatus(ctx, runID)
	if err != nil || status != StatusRunning {
		return Run{}, false, err
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *ClickHouseStore) UpsertTrade(ctx context.Context, t TradeRecord) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.trades
		(run_id, symbol, date, execution_date, signal, quantity, price,
		 effective_price, leverage, success, reason, realized_pnl, cash_after,
		 total_asset_after, commission, stamp_duty, transfer_fee, latency_ms, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, s.db),
		t.RunID, t.Symbol, t.Date, t.ExecutionDate, t.Signal, t.Quantity, t.Price,
		t.EffectivePrice, t.Leverage, boolToUint8(t.Success), t.Reason, t.RealizedPnL,
		t.CashAfter, t.TotalAssetAfter, t.Commission, t.StampDuty, t.TransferFee,
		t.LatencyMs, time.Now())
}

func (s *ClickHouseStore) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`SELECT run_id, symbol, date,
		execution_date, signal, quantity, price, effective_price, leverage, success,
		reason, realized_pnl, cash_after, total_asset_after, commission, stamp_duty,
		transfer_fee, latency_ms
		FROM %s.trades FINAL WHERE run_id = ? ORDER BY date`, s.db), runID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var success uint8
		if err := rows.Scan(&t.RunID, &t.Symbol, &t.Date, &t.ExecutionDate, &t.Signal,
			&t.Quantity, &t.Price, &t.EffectivePrice, &t.Leverage, &success, &t.Reason,
			&t.RealizedPnL, &t.CashAfter, &t.TotalAssetAfter, &t.Commission,
			&t.StampDuty, &t.TransferFee, &t.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Success = success != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) UpsertDailyMetric(ctx context.Context, m DailyMetric) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.daily_metrics
		(run_id, symbol, date, close, cash, position_qty, entry_price, total_asset,
		 unrealized_pnl, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`, s.db),
		m.RunID, m.Symbol, m.Date, m.Close, m.Cash, m.PositionQty, m.EntryPrice,
		m.TotalAsset, m.UnrealizedPnL, time.Now())
}

func (s *ClickHouseStore) UpsertCheckpoint(ctx context.Context, cp Checkpoint) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.checkpoints
		(run_id, symbol, last_processed_date, t_plus_one_unlock, cooldown_until,
		 recent_buy_days, updated_at)
		VALUES (?,?,?,?,?,?,?)`, s.db),
		cp.RunID, cp.Symbol, cp.LastProcessedDate, cp.TPlusOneUnlock,
		cp.CooldownUntil, cp.RecentBuyDays, time.Now())
}

func (s *ClickHouseStore) LoadCheckpoint(ctx context.Context, runID string) (Checkpoint, bool, error) {
	row := s.conn.QueryRow(ctx, fmt.Sprintf(`SELECT run_id, symbol,
		last_processed_date, t_plus_one_unlock, cooldown_until, recent_buy_days, updated_at
		FROM %s.checkpoints FINAL WHERE run_id = ?`, s.db), runID)
	var cp Checkpoint
	if err := row.Scan(&cp.RunID, &cp.Symbol, &cp.LastProcessedDate,
		&cp.TPlusOneUnlock, &cp.CooldownUntil, &cp.RecentBuyDays, &cp.UpdatedAt); err != nil {
		return Checkpoint{}, false, nil
	}
	return cp, true, nil
}

func (s *ClickHouseStore) ListCashflows(ctx context.Context, runID string) ([]Cashflow, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`SELECT run_id, date, amount, note
		FROM %s.cashflows WHERE run_id = ? ORDER BY date`, s.db), runID)
	if err != nil {
		return nil, fmt.Errorf("list cashflows: %w", err)
	}
	defer rows.Close()
	var out []Cashflow
	for rows.Next() {
		var cf Cashflow
		if err := rows.Scan(&cf.RunID, &cf.Date, &cf.Amount, &cf.Note); err != nil {
			return nil, fmt.Errorf("scan cashflow: %w", err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) RecordError(ctx context.Context, e RunError) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s.run_errors
		(run_id, date, stage, message, at) VALUES (?,?,?,?,?)`, s.db),
		e.RunID, e.Date, e.Stage, e.Message, time.Now())
}

// OHLCBar is one row read back from the ohlc table.
type OHLCBar struct {
	Symbol string
	Date   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// LoadBars reads the instrument's daily history ordered by date.
func (s *ClickHouseStore) LoadBars(ctx context.Context, symbol string) ([]OHLCBar, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`SELECT symbol, date, open, high, low, close, volume
		FROM %s.ohlc FINAL WHERE symbol = ? ORDER BY date`, s.db), symbol)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	defer rows.Close()
	var out []OHLCBar
	for rows.Next() {
		var b OHLCBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
