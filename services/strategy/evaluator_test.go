package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/indicators"
	"github.com/buuzzy/AITrading/services/market"
)

func rampBars(n int, step float64) []market.PriceBar {
	bars := make([]market.PriceBar, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := decimal.NewFromFloat(10 + float64(i)*step)
		bars[i] = market.PriceBar{
			Date: base.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return bars
}

func mustEvaluator(t *testing.T, doc string, bars []market.PriceBar) *Evaluator {
	t.Helper()
	cfg, err := ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	eval, err := NewEvaluator(cfg, indicators.NewLibrary(indicators.NewFrame(bars)))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return eval
}

const trendDoc = `
name: trend
entry_rules:
  - name: above_ema
    rules:
      - {indicator: close, comparator: ">", value: ema_5}
exit_rules:
  hard_stop_loss_pct: 5
  hard_take_profit_pct: 20
  signals:
    - name: below_ema
      rules:
        - {indicator: close, comparator: "<", value: ema_5}
`

func TestEvaluatorEntryAndExit(t *testing.T) {
	eval := mustEvaluator(t, trendDoc, rampBars(30, 0.2))
	last := 29

	v := eval.Evaluate(last, PositionContext{})
	if v.Action != ActionBuy {
		t.Fatalf("flat in uptrend: %+v", v)
	}

	// open position, price above ema: hold
	v = eval.Evaluate(last, PositionContext{Open: true, PnLPct: 1})
	if v.Action != ActionHold {
		t.Fatalf("open in uptrend: %+v", v)
	}
}

func TestEvaluatorHardStopsBeatSignals(t *testing.T) {
	eval := mustEvaluator(t, trendDoc, rampBars(30, 0.2))
	last := 29

	v := eval.Evaluate(last, PositionContext{Open: true, PnLPct: -6})
	if v.Action != ActionSell || v.Reason[:14] != "hard stop loss" {
		t.Fatalf("stop loss: %+v", v)
	}
	v = eval.Evaluate(last, PositionContext{Open: true, PnLPct: 25})
	if v.Action != ActionSell || v.Reason[:16] != "hard take profit" {
		t.Fatalf("take profit: %+v", v)
	}
	// exits only apply to open positions
	v = eval.Evaluate(last, PositionContext{Open: false, PnLPct: -6})
	if v.Action == ActionSell {
		t.Fatalf("flat position cannot sell: %+v", v)
	}
}

func TestEvaluatorNaNWarmupIsFalse(t *testing.T) {
	doc := `
entry_rules:
  - name: rsi_entry
    rules:
      - {indicator: rsi_14, comparator: ">", value: 0}
`
	eval := mustEvaluator(t, doc, rampBars(30, 0.2))
	// rsi_14 is NaN on day 3; the condition must be false, not panic
	v := eval.Evaluate(3, PositionContext{})
	if v.Action != ActionHold {
		t.Fatalf("warm-up day: %+v", v)
	}
}

func TestEvaluatorContextNames(t *testing.T) {
	doc := `
entry_rules:
  - name: never
    rules:
      - {indicator: close, comparator: "<", value: 0}
exit_rules:
  signals:
    - name: trail
      rules:
        - {indicator: current_price, comparator: "<", value: position_highest * 0.95}
        - {indicator: holding_days, comparator: ">=", value: 2}
`
	eval := mustEvaluator(t, doc, rampBars(30, 0.2))
	pos := PositionContext{Open: true, Price: 9.0, Highest: 10.0, HoldingDays: 3}
	v := eval.Evaluate(29, pos)
	if v.Action != ActionSell {
		t.Fatalf("trailing exit: %+v", v)
	}
	// not enough drawdown from the high-water mark
	pos.Price = 9.9
	v = eval.Evaluate(29, pos)
	if v.Action != ActionHold {
		t.Fatalf("shallow drawdown: %+v", v)
	}
}

func TestEvaluatorRejectsUnknownIndicator(t *testing.T) {
	doc := `
entry_rules:
  - name: broken
    rules:
      - {indicator: wavelet_9, comparator: ">", value: 0}
`
	cfg, err := ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if _, err := NewEvaluator(cfg, indicators.NewLibrary(indicators.NewFrame(rampBars(10, 0.1)))); err == nil {
		t.Fatal("unknown indicator must fail construction")
	}
}

func TestParseDocumentValidation(t *testing.T) {
	if _, err := ParseDocument([]byte(`name: empty`)); err == nil {
		t.Fatal("document without entry_rules must fail")
	}
	bad := `
entry_rules:
  - name: badcmp
    rules:
      - {indicator: close, comparator: "~", value: 1}
`
	if _, err := ParseDocument([]byte(bad)); err == nil {
		t.Fatal("invalid comparator must fail")
	}
	// JSON documents parse through the same path
	jsonDoc := `{"entry_rules":[{"name":"j","rules":[{"indicator":"close","comparator":">","value":"ema_20"}]}]}`
	cfg, err := ParseDocument([]byte(jsonDoc))
	if err != nil {
		t.Fatalf("json document: %v", err)
	}
	if cfg.PositionSizing.Method != "percent_of_equity" || cfg.PositionSizing.Value != 25 {
		t.Fatalf("sizing default = %+v", cfg.PositionSizing)
	}
}
