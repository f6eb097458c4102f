package driver

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/strategies"
)

// buildContext assembles the decision provider's view of day i: indicator
// snapshot, position and account snapshots, buyable capacity, allowed
// actions and recent-trade memory.
func (d *Driver) buildContext(i int, bar market.PriceBar, flags strategies.Flags) (*decision.Context, error) {
	snapshot := make(map[string]float64, len(snapshotIndicators))
	for _, name := range snapshotIndicators {
		v, err := d.lib.Value(name, i)
		if err != nil {
			return nil, err
		}
		if !math.IsNaN(v) {
			snapshot[name] = v
		}
	}
	for name := range d.lib.Frame().Factors {
		if v, err := d.lib.Value(name, i); err == nil && !math.IsNaN(v) {
			snapshot["factor_"+name] = v
		}
	}

	ctx := &decision.Context{
		RunID:      d.runID,
		Symbol:     d.ledger.Symbol(),
		Date:       bar.DateString(),
		Row:        i,
		Price:      bar.Close.InexactFloat64(),
		Indicators: snapshot,
		Flags:      flags,
		Account: decision.AccountSnapshot{
			AvailableCash: d.ledger.AvailableCash().InexactFloat64(),
			TotalAsset:    d.ledger.TotalAsset().InexactFloat64(),
			InitialCash:   d.summary.InitialCash.InexactFloat64(),
		},
		MaxBuyableLots: d.maxBuyableLots(bar.Close),
		RecentTrades:   d.state.recentTrades,
	}

	if pos, ok := d.ledger.Position(); ok {
		locked := !d.state.TPlusOneUnlock.IsZero() && bar.Date.Before(d.state.TPlusOneUnlock)
		ctx.Position = &decision.PositionSnapshot{
			Quantity:       pos.Quantity,
			EntryPrice:     pos.EntryPrice.InexactFloat64(),
			CurrentPrice:   pos.CurrentPrice.InexactFloat64(),
			Highest:        pos.Highest.InexactFloat64(),
			HoldingDays:    int(market.Day(bar.Date).Sub(pos.BuyDate).Hours() / 24),
			PnLPct:         pos.PnLPct().InexactFloat64(),
			TPlusOneLocked: locked,
		}
		if locked {
			ctx.AllowedActions = []string{"buy", "hold"}
		} else {
			ctx.AllowedActions = []string{"buy", "sell", "hold"}
		}
	} else {
		ctx.AllowedActions = []string{"buy", "hold"}
	}
	return ctx, nil
}

// flagsFor computes the day's strategy flags from the indicator frame.
func (d *Driver) flagsFor(i int) strategies.Flags {
	at := func(name string, idx int) float64 {
		if idx < 0 {
			return math.NaN()
		}
		v, err := d.lib.Value(name, idx)
		if err != nil {
			return math.NaN()
		}
		return v
	}
	row := strategies.Row{
		Price:         at("close", i),
		EMA20:         at("ema_20", i),
		PrevClose:     at("close", i-1),
		PrevEMA20:     at("ema_20", i-1),
		RSI6:          at("rsi_6", i),
		RSI12:         at("rsi_12", i),
		BollUpper:     at("boll_upper", i),
		BollLower:     at("boll_lower", i),
		MACDHist:      at("macd", i),
		PrevMACDHist:  at("macd", i-1),
		PrevMACDHist2: at("macd", i-2),
		Volume:        at("vol", i),
		AvgVolume30:   at("sma_vol_30", i),
		InBuyCooldown: !d.state.CooldownUntil.IsZero() && d.bars[i].Date.Before(d.state.CooldownUntil),
	}
	row.TodayChangePct = math.NaN()
	if prev := at("close", i-1); !math.IsNaN(prev) && prev != 0 && !math.IsNaN(row.Price) {
		row.TodayChangePct = row.Price/prev - 1
	}
	return strategies.Compute(row, d.thresholds)
}

// maxBuyableLots mirrors the gate's affordability math for the provider's
// context: lots of price*(1+slippage)*(1+commission) that fit in cash.
func (d *Driver) maxBuyableLots(price decimal.Decimal) int64 {
	perLot := price.
		Mul(decimal.NewFromFloat(1 + d.cfg.SlippageRate)).
		Mul(decimal.NewFromInt(d.cfg.LotSize)).
		Mul(decimal.NewFromFloat(1 + d.cfg.CommissionRate))
	if perLot.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return d.ledger.AvailableCash().Div(perLot).IntPart()
}

func isNaN(v float64) bool { return math.IsNaN(v) }
