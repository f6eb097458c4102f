// Package store persists runs, trades, daily metrics and checkpoints. The
// driver writes through the Store interface; the ClickHouse implementation
// backs production runs and the in-memory one backs tests. All daily records
// carry unique-by-date upsert semantics: reprocessing a date overwrites,
// never duplicates.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Run is one backtest job.
type Run struct {
	ID           string
	Symbol       string
	Label        string
	Status       string
	StartDate    string
	EndDate      string
	InitialCash  decimal.Decimal
	ConfigHash   string
	StrategyHash string
	StopReason   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TradeRecord is the per-day audit row, unique by (run, symbol, date).
type TradeRecord struct {
	RunID           string
	Symbol          string
	Date            string
	ExecutionDate   string
	Signal          string
	Quantity        int64
	Price           decimal.Decimal
	EffectivePrice  decimal.Decimal
	Leverage        decimal.Decimal
	Success         bool
	Reason          string
	RealizedPnL     decimal.Decimal
	CashAfter       decimal.Decimal
	TotalAssetAfter decimal.Decimal
	Commission      decimal.Decimal
	StampDuty       decimal.Decimal
	TransferFee     decimal.Decimal
	LatencyMs       int64
}

// DailyMetric is one equity-curve point, unique by (run, symbol, date).
type DailyMetric struct {
	RunID         string
	Symbol        string
	Date          string
	Close         decimal.Decimal
	Cash          decimal.Decimal
	PositionQty   int64
	EntryPrice    decimal.Decimal
	TotalAsset    decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Checkpoint is the resumable run state, one row per run.
type Checkpoint struct {
	RunID             string
	Symbol            string
	LastProcessedDate string
	TPlusOneUnlock    string
	CooldownUntil     string
	RecentBuyDays     []string
	UpdatedAt         time.Time
}

// Cashflow is an external deposit (positive) or withdrawal (negative)
// applied on its effective date before that day's decision.
type Cashflow struct {
	RunID  string
	Date   string
	Amount decimal.Decimal
	Note   string
}

// RunError is one journaled failure.
type RunError struct {
	RunID   string
	Date    string
	Stage   string
	Message string
	At      time.Time
}

// Store is the persistence surface the driver and worker use.
type Store interface {
	CreateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	// RunStatus is polled once per processed day for cooperative stop.
	RunStatus(ctx context.Context, runID string) (string, error)
	UpdateRunStatus(ctx context.Context, runID, status, stopReason string) error
	// ClaimPendingRun transitions the oldest pending run to running,
	// returning false when none is available.
	ClaimPendingRun(ctx context.Context) (Run, bool, error)

	UpsertTrade(ctx context.Context, t TradeRecord) error
	ListTrades(ctx context.Context, runID string) ([]TradeRecord, error)

	UpsertDailyMetric(ctx context.Context, m DailyMetric) error
	UpsertCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, runID string) (Checkpoint, bool, error)

	ListCashflows(ctx context.Context, runID string) ([]Cashflow, error)
	RecordError(ctx context.Context, e RunError) error
}
