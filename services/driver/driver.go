// Package driver runs the daily backtest state machine. Each trading day
// moves through MarkToMarket, BuildContext, Decide, RiskGate, Execute and
// Settle&Checkpoint in order; a day is fully settled before the next starts.
// The run is resumable: state persists after every day and resumption
// replays the persisted trade log instead of trusting cached equity.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/config"
	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/indicators"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/portfolio"
	"github.com/buuzzy/AITrading/services/risk"
	"github.com/buuzzy/AITrading/services/store"
	"github.com/buuzzy/AITrading/strategies"
)

// snapshotIndicators are the columns exposed to the decision provider.
var snapshotIndicators = []string{
	"close", "vol", "ema_20", "ema_60", "sma_vol_30",
	"rsi_6", "rsi_12", "macd", "macd_dif", "macd_dea",
	"kdj_k", "kdj_d", "kdj_j",
	"boll_upper", "boll_mid", "boll_lower", "boll_width",
	"atr_14", "cci",
}

// Driver orchestrates one run over one instrument.
type Driver struct {
	cfg        config.Config
	runID      string
	bars       []market.PriceBar
	cal        *market.Calendar
	lib        *indicators.Library
	ledger     *portfolio.Ledger
	gate       *risk.Gate
	slippage   portfolio.SlippageModel
	provider   decision.Provider
	store      store.Store
	thresholds strategies.Thresholds
	logger     *zap.Logger

	state   runState
	summary *Summary
	events  EventLog

	startDate time.Time
	endDate   time.Time
}

// New wires a driver. Bars must include a warm-up prefix of history before
// cfg.StartDate at least as long as the longest indicator window in use.
func New(cfg config.Config, runID string, bars []market.PriceBar, provider decision.Provider, st store.Store, logger *zap.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars supplied")
	}
	if provider == nil {
		return nil, fmt.Errorf("decision provider is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	start, err := market.ParseDate(cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("config start_date: %w", err)
	}
	end, err := market.ParseDate(cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("config end_date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s before start_date %s", cfg.EndDate, cfg.StartDate)
	}

	fees := portfolio.FeeSchedule{
		CommissionRate:  decimal.NewFromFloat(cfg.CommissionRate),
		StampDutyRate:   decimal.NewFromFloat(cfg.StampDutyRate),
		TransferFeeRate: decimal.NewFromFloat(cfg.TransferFeeRate),
	}
	cal := market.NewCalendar(bars)
	initial := decimal.NewFromFloat(cfg.InitialCash)
	d := &Driver{
		cfg:        cfg,
		runID:      runID,
		bars:       bars,
		cal:        cal,
		lib:        indicators.NewLibrary(indicators.NewFrame(bars)),
		ledger:     portfolio.NewLedger(cfg.Symbol, initial, fees, cfg.LotSize, logger),
		gate:       risk.NewGate(cfg, fees, cal, logger),
		slippage:   portfolio.NewRatioSlippage(cfg.SlippageRate),
		provider:   provider,
		store:      st,
		thresholds: strategies.DefaultThresholds(),
		logger:     logger,
		summary:    newSummary(runID, market.NormalizeSymbol(cfg.Symbol), initial),
		startDate:  start,
		endDate:    end,
	}
	d.thresholds.ReleaseRSI6 = cfg.CooldownReleaseRSI
	d.thresholds.ReleaseEMABand = cfg.CooldownReleaseBand
	return d, nil
}

// Events returns the audit trail accumulated so far.
func (d *Driver) Events() []Event { return d.events.Events }

// Ledger exposes the account for reporting.
func (d *Driver) Ledger() *portfolio.Ledger { return d.ledger }

// Run processes the configured date range and returns the summary. The
// context cancels cooperatively at day boundaries.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	if err := d.resume(ctx); err != nil {
		return nil, err
	}

	for i, bar := range d.bars {
		day := bar.Date
		if day.Before(d.startDate) || day.After(d.endDate) {
			continue
		}
		if !d.state.lastProcessed.IsZero() && !day.After(d.state.lastProcessed) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return d.finish(ctx, store.StatusStopped, "context cancelled")
		}
		if stopped := d.externallyStopped(ctx); stopped {
			return d.finish(ctx, store.StatusStopped, "stop requested")
		}

		halt, err := d.processDay(ctx, i, bar)
		if err != nil {
			d.summary.StopReason = err.Error()
			if ferr := d.persistStatus(ctx, store.StatusFailed, err.Error()); ferr != nil {
				d.logger.Error("status update failed", zap.Error(ferr))
			}
			return d.summary, err
		}
		if halt {
			return d.finish(ctx, store.StatusFailed, d.summary.StopReason)
		}
	}
	return d.finish(ctx, store.StatusCompleted, "")
}

// processDay runs one full day. A returned halt=true aborts the run safely
// (the day's checkpoint is already consistent); err means the run failed in
// a way that may leave the day unsettled.
func (d *Driver) processDay(ctx context.Context, i int, bar market.PriceBar) (halt bool, err error) {
	date := bar.DateString()

	// External cash flows land before any valuation or decision.
	if err := d.applyCashflowsFor(ctx, date); err != nil {
		return false, err
	}

	// MarkToMarket
	d.ledger.MarkToMarket(bar.Close)

	// BuildContext
	flags := d.flagsFor(i)
	dayCtx, err := d.buildContext(i, bar, flags)
	if err != nil {
		return false, fmt.Errorf("build context for %s: %w", date, err)
	}

	// Decide
	started := time.Now()
	dec, decErr := d.provider.Decide(ctx, dayCtx)
	latency := time.Since(started)
	if decErr != nil {
		d.state.consecFailures++
		d.journal(ctx, date, "decide", decErr)
		d.logger.Warn("decision provider error",
			zap.String("date", date),
			zap.Int("consecutive", d.state.consecFailures),
			zap.Error(decErr),
		)
		if d.state.consecFailures >= d.cfg.MaxConsecutiveFailures {
			d.summary.StopReason = fmt.Sprintf("aborted after %d consecutive decision failures", d.state.consecFailures)
			d.events.Append(EventHalt, date, map[string]string{"reason": d.summary.StopReason})
			// settle the day as a hold so the checkpoint stays consistent
			if err := d.settleDay(ctx, i, bar, holdRecord(d, bar, "decision provider unavailable", latency)); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, d.settleDay(ctx, i, bar, holdRecord(d, bar, "decision provider error, holding", latency))
	}
	d.state.consecFailures = 0
	d.events.Append(EventDecision, date, map[string]string{
		"signal":     string(dec.Signal),
		"lots":       fmt.Sprintf("%d", dec.QuantityLots),
		"confidence": fmt.Sprintf("%.2f", dec.Confidence),
	})

	// RiskGate
	req := risk.Request{
		Day:      bar.Date,
		Bar:      bar,
		Decision: dec,
		Flags:    flags,
	}
	if i > 0 {
		req.PrevClose = d.bars[i-1].Close
	}
	if i+1 < len(d.bars) {
		req.NextBar = &d.bars[i+1]
	}
	if ema, err := d.lib.Value("ema_20", i); err == nil && !isNaN(ema) {
		req.EMA20 = decimal.NewFromFloat(ema)
	}
	outcome := d.gate.Apply(req, d.ledger, &d.state.State)
	for _, r := range outcome.Reasons {
		d.events.Append(EventVeto, date, map[string]string{"reason": r})
	}

	// Execute
	record := d.execute(bar, dec, outcome, flags, latency)

	// Settle & Checkpoint
	return false, d.settleDay(ctx, i, bar, record)
}

// execute applies the gated decision to the ledger. Ledger refusals are the
// last line of defense: they normalize to an unsuccessful hold record, never
// an aborted run.
func (d *Driver) execute(bar market.PriceBar, dec decision.Decision, out risk.Outcome, flags strategies.Flags, latency time.Duration) store.TradeRecord {
	date := bar.DateString()
	rec := store.TradeRecord{
		RunID:         d.runID,
		Symbol:        d.ledger.Symbol(),
		Date:          date,
		ExecutionDate: date,
		Signal:        string(out.Signal),
		Quantity:      out.Quantity,
		Price:         bar.Close,
		Leverage:      decimal.NewFromInt(1),
		Success:       true,
		Reason:        joinReasons(dec.Rationale, out.Reasons),
		LatencyMs:     latency.Milliseconds(),
	}

	switch out.Signal {
	case decision.SignalBuy:
		fill := d.slippage.BuyFill(bar)
		res, err := d.ledger.Buy(out.Quantity, fill, bar.Date)
		if err != nil {
			d.logger.Warn("buy refused by ledger", zap.String("date", date), zap.Error(err))
			rec.Signal = string(decision.SignalHold)
			rec.Quantity = 0
			rec.Success = false
			rec.Reason = err.Error()
			break
		}
		rec.EffectivePrice = fill
		rec.Commission = res.Fees.Commission
		rec.CashAfter = res.CashAfter
		rec.TotalAssetAfter = res.TotalAssetAfter
		d.summary.addBuy(res.Fees)
		d.gate.RecordBuy(&d.state.State, bar.Date, flags.ExploratoryBuy && !flags.TrendBuyStrict)
		d.state.remember(decision.TradeMemo{Date: date, Action: "buy", Quantity: out.Quantity, Price: fill.InexactFloat64()})
		d.events.Append(EventOrderFill, date, map[string]string{
			"side": "buy", "qty": fmt.Sprintf("%d", out.Quantity), "price": fill.String(),
		})

	case decision.SignalSell:
		fill := d.slippage.SellFill(bar)
		res, err := d.ledger.Sell(out.Quantity, fill, bar.Date)
		if err != nil {
			d.logger.Warn("sell refused by ledger", zap.String("date", date), zap.Error(err))
			rec.Signal = string(decision.SignalHold)
			rec.Quantity = 0
			rec.Success = false
			rec.Reason = err.Error()
			break
		}
		_, stillOpen := d.ledger.Position()
		rec.EffectivePrice = fill
		rec.Quantity = res.Quantity
		rec.RealizedPnL = res.RealizedPnL
		rec.Commission = res.Fees.Commission
		rec.StampDuty = res.Fees.StampDuty
		rec.TransferFee = res.Fees.TransferFee
		rec.CashAfter = res.CashAfter
		rec.TotalAssetAfter = res.TotalAssetAfter
		d.summary.addSell(res.RealizedPnL, res.Fees)
		d.gate.RecordSell(&d.state.State, bar.Date, !stillOpen)
		d.state.remember(decision.TradeMemo{Date: date, Action: "sell", Quantity: res.Quantity, Price: fill.InexactFloat64()})
		d.events.Append(EventOrderFill, date, map[string]string{
			"side": "sell", "qty": fmt.Sprintf("%d", res.Quantity), "price": fill.String(), "realized": res.RealizedPnL.String(),
		})

	default:
		rec.CashAfter = d.ledger.AvailableCash()
		rec.TotalAssetAfter = d.ledger.TotalAsset()
	}
	return rec
}

// settleDay persists the day's trade record, metric and checkpoint, then
// advances lastProcessed. Persistence failures are journaled and tolerated
// unless strict mode is on; the financial state never depends on them.
func (d *Driver) settleDay(ctx context.Context, i int, bar market.PriceBar, rec store.TradeRecord) error {
	date := bar.DateString()

	if err := d.store.UpsertTrade(ctx, rec); err != nil {
		if d.persistFailure(ctx, date, "trade", err) {
			return fmt.Errorf("persist trade %s: %w", date, err)
		}
	}

	metric := store.DailyMetric{
		RunID:      d.runID,
		Symbol:     d.ledger.Symbol(),
		Date:       date,
		Close:      bar.Close,
		Cash:       d.ledger.AvailableCash(),
		TotalAsset: d.ledger.TotalAsset(),
	}
	if pos, ok := d.ledger.Position(); ok {
		metric.PositionQty = pos.Quantity
		metric.EntryPrice = pos.EntryPrice
		metric.UnrealizedPnL = pos.UnrealizedPnL()
	}
	if err := d.store.UpsertDailyMetric(ctx, metric); err != nil {
		if d.persistFailure(ctx, date, "daily_metric", err) {
			return fmt.Errorf("persist daily metric %s: %w", date, err)
		}
	}

	d.state.lastProcessed = bar.Date
	d.summary.DaysProcessed++
	cp := d.state.checkpoint(d.runID, d.ledger.Symbol())
	if err := d.store.UpsertCheckpoint(ctx, cp); err != nil {
		if d.persistFailure(ctx, date, "checkpoint", err) {
			return fmt.Errorf("persist checkpoint %s: %w", date, err)
		}
	}
	d.events.Append(EventCheckpoint, date, map[string]string{
		"total_asset": d.ledger.TotalAsset().String(),
	})
	return nil
}

func (d *Driver) finish(ctx context.Context, status, reason string) (*Summary, error) {
	if d.summary.StopReason == "" {
		d.summary.StopReason = reason
	}
	d.summary.finalize(d.ledger.TotalAsset())
	if err := d.persistStatus(ctx, status, d.summary.StopReason); err != nil {
		d.logger.Error("final status update failed", zap.Error(err))
	}
	d.logger.Info("run finished",
		zap.String("run_id", d.runID),
		zap.String("status", status),
		zap.Int("days", d.summary.DaysProcessed),
		zap.String("final_total_asset", d.summary.FinalTotalAsset.String()),
		zap.String("realized_pnl", d.summary.RealizedPnL.String()),
	)
	return d.summary, nil
}

func (d *Driver) persistStatus(ctx context.Context, status, reason string) error {
	return d.store.UpdateRunStatus(ctx, d.runID, status, reason)
}

// externallyStopped polls the run-status flag once per day boundary.
func (d *Driver) externallyStopped(ctx context.Context) bool {
	status, err := d.store.RunStatus(ctx, d.runID)
	if err != nil {
		d.logger.Warn("run status poll failed", zap.Error(err))
		return false
	}
	return status == store.StatusStopped || status == store.StatusFailed
}

func (d *Driver) applyCashflowsFor(ctx context.Context, date string) error {
	flows, err := d.store.ListCashflows(ctx, d.runID)
	if err != nil {
		d.logger.Warn("cashflow fetch failed", zap.Error(err))
		return nil
	}
	for _, cf := range flows {
		if cf.Date != date {
			continue
		}
		if err := d.applyCashflow(cf); err != nil {
			d.journal(ctx, date, "cashflow", err)
			continue
		}
		d.events.Append(EventCashflow, date, map[string]string{"amount": cf.Amount.String()})
	}
	return nil
}

func (d *Driver) applyCashflow(cf store.Cashflow) error {
	if cf.Amount.GreaterThanOrEqual(decimal.Zero) {
		d.ledger.Deposit(cf.Amount)
		return nil
	}
	return d.ledger.Withdraw(cf.Amount.Abs())
}

func (d *Driver) journal(ctx context.Context, date, stage string, err error) {
	jerr := d.store.RecordError(ctx, store.RunError{
		RunID:   d.runID,
		Date:    date,
		Stage:   stage,
		Message: err.Error(),
	})
	if jerr != nil {
		d.logger.Warn("error journal write failed", zap.Error(jerr))
	}
}

// persistFailure journals a store failure and reports whether it is fatal.
func (d *Driver) persistFailure(ctx context.Context, date, stage string, err error) bool {
	d.logger.Error("persistence failure",
		zap.String("date", date),
		zap.String("stage", stage),
		zap.Bool("strict", d.cfg.StrictPersistence),
		zap.Error(err),
	)
	d.journal(ctx, date, stage, err)
	return d.cfg.StrictPersistence
}

func holdRecord(d *Driver, bar market.PriceBar, reason string, latency time.Duration) store.TradeRecord {
	return store.TradeRecord{
		RunID:           d.runID,
		Symbol:          d.ledger.Symbol(),
		Date:            bar.DateString(),
		ExecutionDate:   bar.DateString(),
		Signal:          string(decision.SignalHold),
		Price:           bar.Close,
		Leverage:        decimal.NewFromInt(1),
		Success:         false,
		Reason:          reason,
		CashAfter:       d.ledger.AvailableCash(),
		TotalAssetAfter: d.ledger.TotalAsset(),
		LatencyMs:       latency.Milliseconds(),
	}
}

func joinReasons(rationale string, reasons []string) string {
	s := rationale
	for _, r := range reasons {
		if s == "" {
			s = r
			continue
		}
		s += "; " + r
	}
	return s
}
