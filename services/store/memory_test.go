package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreRunLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := Run{ID: "r1", Symbol: "000001", Status: StatusPending,
		StartDate: "2024-01-02", EndDate: "2024-01-31",
		InitialCash: decimal.NewFromInt(100000)}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRun(ctx, run); err == nil {
		t.Fatal("duplicate run id must fail")
	}

	claimed, ok, err := s.ClaimPendingRun(ctx)
	if err != nil || !ok || claimed.ID != "r1" {
		t.Fatalf("claim = %+v %v %v", claimed, ok, err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("claimed status = %s", claimed.Status)
	}
	// nothing left to claim
	if _, ok, _ := s.ClaimPendingRun(ctx); ok {
		t.Fatal("second claim should find nothing")
	}

	if err := s.UpdateRunStatus(ctx, "r1", StatusStopped, "user request"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRun(ctx, "r1")
	if err != nil || got.Status != StatusStopped || got.StopReason != "user request" {
		t.Fatalf("run = %+v %v", got, err)
	}
	status, err := s.RunStatus(ctx, "r1")
	if err != nil || status != StatusStopped {
		t.Fatalf("status = %s %v", status, err)
	}
}

func TestMemoryStoreUpsertByDate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tr := TradeRecord{RunID: "r1", Symbol: "000001", Date: "2024-01-05",
		Signal: "hold"}
	if err := s.UpsertTrade(ctx, tr); err != nil {
		t.Fatal(err)
	}
	// reprocessing the day overwrites, never duplicates
	tr.Signal = "buy"
	tr.Quantity = 100
	if err := s.UpsertTrade(ctx, tr); err != nil {
		t.Fatal(err)
	}
	trades, err := s.ListTrades(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].Signal != "buy" || trades[0].Quantity != 100 {
		t.Fatalf("trades = %+v", trades)
	}

	m := DailyMetric{RunID: "r1", Date: "2024-01-05", Cash: decimal.NewFromInt(1)}
	if err := s.UpsertDailyMetric(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Cash = decimal.NewFromInt(2)
	if err := s.UpsertDailyMetric(ctx, m); err != nil {
		t.Fatal(err)
	}
	ms := s.ListDailyMetrics("r1")
	if len(ms) != 1 || !ms[0].Cash.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("metrics = %+v", ms)
	}
}

func TestMemoryStoreCheckpointRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.LoadCheckpoint(ctx, "r1"); ok {
		t.Fatal("fresh store has no checkpoint")
	}
	cp := Checkpoint{RunID: "r1", Symbol: "000001",
		LastProcessedDate: "2024-01-05",
		RecentBuyDays:     []string{"2024-01-04"}}
	if err := s.UpsertCheckpoint(ctx, cp); err != nil {
		t.Fatal(err)
	}
	cp.LastProcessedDate = "2024-01-08"
	if err := s.UpsertCheckpoint(ctx, cp); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.LoadCheckpoint(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("load = %v %v", ok, err)
	}
	if got.LastProcessedDate != "2024-01-08" || len(got.RecentBuyDays) != 1 {
		t.Fatalf("checkpoint = %+v", got)
	}
}

func TestMemoryStoreCashflowsSorted(t *testing.T) {
	s := NewMemoryStore()
	s.AddCashflow(Cashflow{RunID: "r1", Date: "2024-01-10", Amount: decimal.NewFromInt(500)})
	s.AddCashflow(Cashflow{RunID: "r1", Date: "2024-01-03", Amount: decimal.NewFromInt(-200)})
	cfs, err := s.ListCashflows(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfs) != 2 || cfs[0].Date != "2024-01-03" {
		t.Fatalf("cashflows = %+v", cfs)
	}
}
