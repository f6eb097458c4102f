package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu        sync.Mutex
	runs      map[string]Run
	trades    map[string]map[string]TradeRecord // runID -> date -> record
	metrics   map[string]map[string]DailyMetric
	checkpts  map[string]Checkpoint
	cashflows map[string][]Cashflow
	errors    []RunError
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]Run),
		trades:    make(map[string]map[string]TradeRecord),
		metrics:   make(map[string]map[string]DailyMetric),
		checkpts:  make(map[string]Checkpoint),
		cashflows: make(map[string][]Cashflow),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("run %s not found", runID)
	}
	return run, nil
}

func (s *MemoryStore) RunStatus(_ context.Context, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return "", fmt.Errorf("run %s not found", runID)
	}
	return run.Status, nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID, status, stopReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	if stopReason != "" {
		run.StopReason = stopReason
	}
	run.UpdatedAt = time.Now()
	s.runs[runID] = run
	return nil
}

func (s *MemoryStore) ClaimPendingRun(_ context.Context) (Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *Run
	for id := range s.runs {
		run := s.runs[id]
		if run.Status != StatusPending {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &run
		}
	}
	if oldest == nil {
		return Run{}, false, nil
	}
	oldest.Status = StatusRunning
	oldest.UpdatedAt = time.Now()
	s.runs[oldest.ID] = *oldest
	return *oldest, true, nil
}

func (s *MemoryStore) UpsertTrade(_ context.Context, t TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trades[t.RunID] == nil {
		s.trades[t.RunID] = make(map[string]TradeRecord)
	}
	s.trades[t.RunID][t.Date] = t
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, runID string) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TradeRecord, 0, len(s.trades[runID]))
	for _, t := range s.trades[runID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) UpsertDailyMetric(_ context.Context, m DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics[m.RunID] == nil {
		s.metrics[m.RunID] = make(map[string]DailyMetric)
	}
	s.metrics[m.RunID][m.Date] = m
	return nil
}

// ListDailyMetrics returns the equity curve ordered by date.
func (s *MemoryStore) ListDailyMetrics(runID string) []DailyMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DailyMetric, 0, len(s.metrics[runID]))
	for _, m := range s.metrics[runID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s *MemoryStore) UpsertCheckpoint(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.UpdatedAt = time.Now()
	s.checkpts[cp.RunID] = cp
	return nil
}

func (s *MemoryStore) LoadCheckpoint(_ context.Context, runID string) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpts[runID]
	return cp, ok, nil
}

// AddCashflow seeds an external cash flow for tests.
func (s *MemoryStore) AddCashflow(cf Cashflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashflows[cf.RunID] = append(s.cashflows[cf.RunID], cf)
}

func (s *MemoryStore) ListCashflows(_ context.Context, runID string) ([]Cashflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cashflow, len(s.cashflows[runID]))
	copy(out, s.cashflows[runID])
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) RecordError(_ context.Context, e RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.At = time.Now()
	s.errors = append(s.errors, e)
	return nil
}

// Errors returns the journaled failures.
func (s *MemoryStore) Errors() []RunError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunError, len(s.errors))
	copy(out, s.errors)
	return out
}
