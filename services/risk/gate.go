// Package risk applies the deterministic gates between an untrusted decision
// and the ledger: affordability, lot clamps, T+1, cooldown windows, downtrend
// caps, limit-move rejection, and trend-invalidation forced exits. The gate
// runs on every decision regardless of its source.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/config"
	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/portfolio"
	"github.com/buuzzy/AITrading/strategies"
)

// State is the gate's per-run memory, persisted with the checkpoint.
type State struct {
	// TPlusOneUnlock is the first day a sell may settle; zero when flat.
	TPlusOneUnlock time.Time
	// CooldownUntil suppresses buys up to (and excluding) this day.
	CooldownUntil time.Time
	// RecentBuyDays remembers executed buy dates for the frequency cap.
	RecentBuyDays []time.Time
}

// Request is one day's gate input.
type Request struct {
	Day       time.Time
	Bar       market.PriceBar
	PrevClose decimal.Decimal
	// NextBar is the following session, when known; a sealed limit-down
	// next bar vetoes sells that could not have filled.
	NextBar  *market.PriceBar
	Decision decision.Decision
	Flags    strategies.Flags
	EMA20    decimal.Decimal // trend baseline; zero when unavailable
}

// Outcome is the clamped decision. Quantity is in shares.
type Outcome struct {
	Signal   decision.Signal
	Quantity int64
	Reasons  []string
}

func (o *Outcome) veto(reason string) {
	o.Signal = decision.SignalHold
	o.Quantity = 0
	o.Reasons = append(o.Reasons, reason)
}

// Gate holds the configured thresholds.
type Gate struct {
	cfg    config.Config
	fees   portfolio.FeeSchedule
	cal    *market.Calendar
	logger *zap.Logger
}

// NewGate builds a gate for one run.
func NewGate(cfg config.Config, fees portfolio.FeeSchedule, cal *market.Calendar, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, fees: fees, cal: cal, logger: logger}
}

// Apply validates and clamps the day's decision against the ledger and the
// gate state. It never errors; everything unacceptable becomes hold.
func (g *Gate) Apply(req Request, led *portfolio.Ledger, st *State) Outcome {
	out := Outcome{Signal: req.Decision.Signal, Quantity: req.Decision.QuantityLots * led.LotSize()}

	// Trend invalidation forces an exit even when the provider holds.
	pos, hasPos := led.Position()
	if req.Flags.TrendInvalidation && hasPos && out.Signal != decision.SignalSell {
		out.Signal = decision.SignalSell
		out.Quantity = invalidationQuantity(pos.Quantity, led.LotSize(), g.cfg.InvalidationSellRatio)
		out.Reasons = append(out.Reasons, "trend invalidation: forced partial exit")
	}

	switch out.Signal {
	case decision.SignalBuy:
		g.gateBuy(&req, led, st, &out)
	case decision.SignalSell:
		g.gateSell(&req, led, st, &out)
	default:
		out.Quantity = 0
	}

	if out.Signal != decision.SignalHold && out.Quantity <= 0 {
		out.veto("quantity resolved to zero")
	}
	for _, r := range out.Reasons {
		g.logger.Debug("risk gate", zap.String("date", req.Day.Format(market.DateLayout)), zap.String("reason", r))
	}
	return out
}

func (g *Gate) gateBuy(req *Request, led *portfolio.Ledger, st *State, out *Outcome) {
	day := market.Day(req.Day)

	if !st.CooldownUntil.IsZero() && day.Before(st.CooldownUntil) {
		if req.Flags.CooldownReleaseMet {
			out.Reasons = append(out.Reasons, "cooldown released early")
		} else {
			out.veto(fmt.Sprintf("buy cooldown active until %s", st.CooldownUntil.Format(market.DateLayout)))
			return
		}
	}

	if limitMoved(led.Symbol(), req.Bar, req.PrevClose) {
		out.veto("limit-up/down day: buy rejected")
		return
	}

	if g.buysInWindow(st, day) >= g.cfg.MaxBuysPerWindow {
		out.veto(fmt.Sprintf("buy frequency cap: %d buys in %d open days", g.cfg.MaxBuysPerWindow, g.cfg.BuyWindowOpenDays))
		return
	}

	pos, hasPos := led.Position()
	if hasPos && !req.EMA20.IsZero() {
		ratio := req.Bar.Close.Div(req.EMA20)
		maxRatio := decimal.NewFromFloat(g.cfg.AddOnMaxEMARatio)
		if req.Flags.AnyHot() {
			maxRatio = decimal.NewFromFloat(g.cfg.AddOnMaxEMARatioHot)
		}
		if ratio.GreaterThanOrEqual(maxRatio) {
			out.veto(fmt.Sprintf("add-on blocked: price/ema20 %s above %s", ratio.StringFixed(4), maxRatio.StringFixed(2)))
			return
		}
	}

	lot := led.LotSize()
	perLot := g.perLotCost(req.Bar.Close, lot)
	if perLot.LessThanOrEqual(decimal.Zero) {
		out.veto("non-positive per-lot cost")
		return
	}
	affordable := led.AvailableCash().Div(perLot).IntPart()
	wanted := out.Quantity / lot
	if wanted > affordable {
		out.Reasons = append(out.Reasons, fmt.Sprintf("clamped to %d affordable lots", affordable))
		wanted = affordable
	}

	if req.Flags.InDowntrendCap {
		heldLots := int64(0)
		if hasPos {
			heldLots = pos.Quantity / lot
		}
		capacity := heldLots + affordable
		capLots := decimal.NewFromInt(capacity).Mul(decimal.NewFromFloat(g.cfg.DowntrendCapPct)).IntPart()
		allowed := capLots - heldLots
		if allowed < 0 {
			allowed = 0
		}
		if wanted > allowed {
			out.Reasons = append(out.Reasons, fmt.Sprintf("downtrend cap: position limited to %d%% of capacity", int(g.cfg.DowntrendCapPct*100)))
			wanted = allowed
		}
	}

	out.Quantity = wanted * lot
}

func (g *Gate) gateSell(req *Request, led *portfolio.Ledger, st *State, out *Outcome) {
	day := market.Day(req.Day)
	pos, hasPos := led.Position()
	if !hasPos {
		out.veto("sell with no open position")
		return
	}
	if !st.TPlusOneUnlock.IsZero() && day.Before(st.TPlusOneUnlock) {
		out.veto(fmt.Sprintf("T+1 lock until %s", st.TPlusOneUnlock.Format(market.DateLayout)))
		return
	}
	if req.NextBar != nil && market.IsSealedLimitDown(led.Symbol(), *req.NextBar, req.Bar.Close) {
		out.veto("next session sealed at limit-down: sell could not fill")
		return
	}

	lot := led.LotSize()
	if req.Flags.TrendInvalidation {
		min := invalidationQuantity(pos.Quantity, lot, g.cfg.InvalidationSellRatio)
		if out.Quantity < min {
			out.Reasons = append(out.Reasons, "trend invalidation: sell raised to minimum exit size")
			out.Quantity = min
		}
	}
	if out.Quantity > pos.Quantity {
		out.Reasons = append(out.Reasons, "clamped to held quantity")
		out.Quantity = pos.Quantity
	}
	if out.Quantity != pos.Quantity {
		out.Quantity = (out.Quantity / lot) * lot
	}
}

// perLotCost prices one board lot including the slippage buffer and round
// trip fee rate, so a gated buy cannot fail affordability at execution.
func (g *Gate) perLotCost(closePrice decimal.Decimal, lot int64) decimal.Decimal {
	slip := decimal.NewFromFloat(1 + g.cfg.SlippageRate)
	feeRate := decimal.NewFromFloat(1 + g.cfg.CommissionRate)
	return closePrice.Mul(slip).Mul(decimal.NewFromInt(lot)).Mul(feeRate)
}

func (g *Gate) buysInWindow(st *State, day time.Time) int {
	from, ok := g.cal.AddOpenDays(day, -(g.cfg.BuyWindowOpenDays - 1))
	if !ok {
		if len(g.cal.Days()) == 0 {
			return len(st.RecentBuyDays)
		}
		from = g.cal.Days()[0]
	}
	n := 0
	for _, d := range st.RecentBuyDays {
		if !d.Before(from) && !d.After(day) {
			n++
		}
	}
	return n
}

// RecordBuy advances the gate state after an executed buy. Exploratory buys
// start a cooldown immediately.
func (g *Gate) RecordBuy(st *State, day time.Time, exploratory bool) {
	d := market.Day(day)
	st.RecentBuyDays = append(st.RecentBuyDays, d)
	if unlock, ok := g.cal.AddOpenDays(d, 1); ok {
		st.TPlusOneUnlock = unlock
	} else {
		st.TPlusOneUnlock = d.AddDate(0, 0, 1)
	}
	if exploratory {
		g.startCooldown(st, d)
	}
}

// RecordSell starts the post-exit cooldown and, when the position is gone,
// clears the T+1 lock.
func (g *Gate) RecordSell(st *State, day time.Time, positionClosed bool) {
	d := market.Day(day)
	g.startCooldown(st, d)
	if positionClosed {
		st.TPlusOneUnlock = time.Time{}
	}
}

func (g *Gate) startCooldown(st *State, day time.Time) {
	if until, ok := g.cal.AddOpenDays(day, g.cfg.CooldownOpenDays); ok {
		st.CooldownUntil = until
	} else {
		st.CooldownUntil = day.AddDate(0, 0, g.cfg.CooldownOpenDays)
	}
}

func limitMoved(symbol string, bar market.PriceBar, prevClose decimal.Decimal) bool {
	if prevClose.IsZero() {
		return false
	}
	change := bar.Close.Sub(prevClose).Div(prevClose).Abs()
	return change.GreaterThanOrEqual(market.LimitThreshold(symbol))
}

func invalidationQuantity(held, lot int64, ratio float64) int64 {
	want := decimal.NewFromInt(held).Mul(decimal.NewFromFloat(ratio))
	lots := want.Div(decimal.NewFromInt(lot)).Ceil().IntPart()
	q := lots * lot
	if q > held {
		q = held
	}
	return q
}
