package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/risk"
	"github.com/buuzzy/AITrading/services/store"
)

// runState is the explicit per-run mutable state. Nothing about a run lives
// in ambient globals or closures; resuming rebuilds exactly this.
type runState struct {
	risk.State
	lastProcessed  time.Time
	consecFailures int
	recentTrades   []decision.TradeMemo
}

const recentTradeMemory = 10

func (s *runState) remember(memo decision.TradeMemo) {
	s.recentTrades = append(s.recentTrades, memo)
	if len(s.recentTrades) > recentTradeMemory {
		s.recentTrades = s.recentTrades[len(s.recentTrades)-recentTradeMemory:]
	}
}

// checkpoint serializes the state for persistence.
func (s *runState) checkpoint(runID, symbol string) store.Checkpoint {
	cp := store.Checkpoint{
		RunID:  runID,
		Symbol: symbol,
	}
	if !s.lastProcessed.IsZero() {
		cp.LastProcessedDate = s.lastProcessed.Format(market.DateLayout)
	}
	if !s.TPlusOneUnlock.IsZero() {
		cp.TPlusOneUnlock = s.TPlusOneUnlock.Format(market.DateLayout)
	}
	if !s.CooldownUntil.IsZero() {
		cp.CooldownUntil = s.CooldownUntil.Format(market.DateLayout)
	}
	for _, d := range s.RecentBuyDays {
		cp.RecentBuyDays = append(cp.RecentBuyDays, d.Format(market.DateLayout))
	}
	return cp
}

func stateFromCheckpoint(cp store.Checkpoint) (runState, error) {
	var st runState
	parse := func(s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		return market.ParseDate(s)
	}
	var err error
	if st.lastProcessed, err = parse(cp.LastProcessedDate); err != nil {
		return st, fmt.Errorf("checkpoint last_processed_date: %w", err)
	}
	if st.TPlusOneUnlock, err = parse(cp.TPlusOneUnlock); err != nil {
		return st, fmt.Errorf("checkpoint t_plus_one_unlock: %w", err)
	}
	if st.CooldownUntil, err = parse(cp.CooldownUntil); err != nil {
		return st, fmt.Errorf("checkpoint cooldown_until: %w", err)
	}
	for _, s := range cp.RecentBuyDays {
		d, err := market.ParseDate(s)
		if err != nil {
			return st, fmt.Errorf("checkpoint recent_buy_days: %w", err)
		}
		st.RecentBuyDays = append(st.RecentBuyDays, d)
	}
	return st, nil
}

// resume rebuilds the ledger by replaying the persisted trade log through the
// same ledger operations, interleaved with cashflows in date order. Replay is
// exact: the same decimal arithmetic runs again, so a resumed run matches an
// uninterrupted one bit for bit. Cached equity numbers are never trusted.
func (d *Driver) resume(ctx context.Context) error {
	cp, ok, err := d.store.LoadCheckpoint(ctx, d.runID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return nil
	}
	st, err := stateFromCheckpoint(cp)
	if err != nil {
		return err
	}

	trades, err := d.store.ListTrades(ctx, d.runID)
	if err != nil {
		return fmt.Errorf("list trades for replay: %w", err)
	}
	flows, err := d.store.ListCashflows(ctx, d.runID)
	if err != nil {
		return fmt.Errorf("list cashflows for replay: %w", err)
	}
	cutoff := cp.LastProcessedDate

	fi := 0
	applyFlowsThrough := func(date string) error {
		for fi < len(flows) && flows[fi].Date <= date {
			if err := d.applyCashflow(flows[fi]); err != nil {
				return err
			}
			fi++
		}
		return nil
	}

	// Replay walks the bars, not just the trades: each processed day is
	// re-marked to its close so the position's high-water mark comes out
	// of replay the same as it went into the crash.
	ti := 0
	for _, bar := range d.bars {
		date := bar.DateString()
		if cutoff != "" && date > cutoff {
			break
		}
		if err := applyFlowsThrough(date); err != nil {
			return err
		}
		d.ledger.MarkToMarket(bar.Close)
		for ti < len(trades) && trades[ti].Date <= date {
			t := trades[ti]
			ti++
			if !t.Success || t.Quantity == 0 {
				continue
			}
			execDay, err := market.ParseDate(t.ExecutionDate)
			if err != nil {
				return fmt.Errorf("replay trade %s: %w", t.Date, err)
			}
			switch decision.Signal(t.Signal) {
			case decision.SignalBuy:
				if _, err := d.ledger.Buy(t.Quantity, t.EffectivePrice, execDay); err != nil {
					return fmt.Errorf("replay buy %s: %w", t.Date, err)
				}
			case decision.SignalSell:
				if _, err := d.ledger.Sell(t.Quantity, t.EffectivePrice, execDay); err != nil {
					return fmt.Errorf("replay sell %s: %w", t.Date, err)
				}
			}
			st.remember(decision.TradeMemo{
				Date:     t.Date,
				Action:   t.Signal,
				Quantity: t.Quantity,
				Price:    t.EffectivePrice.InexactFloat64(),
			})
		}
	}
	if cutoff != "" {
		if err := applyFlowsThrough(cutoff); err != nil {
			return err
		}
	}

	d.state = st
	d.logger.Info("resumed from checkpoint",
		zap.String("run_id", d.runID),
		zap.String("last_processed", cp.LastProcessedDate),
		zap.String("cash", d.ledger.AvailableCash().String()),
	)
	return nil
}
