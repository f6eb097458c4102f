package strategy

import (
	"fmt"
	"math"

	"github.com/buuzzy/AITrading/services/indicators"
)

// Action is the evaluator's verdict vocabulary.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Verdict is the per-day decision with its human-readable reason.
type Verdict struct {
	Action Action
	Reason string
}

// PositionContext carries the open-position values injected alongside raw
// indicators: unrealized P&L percent, high-water mark, calendar holding days
// and the marked price.
type PositionContext struct {
	Open        bool
	PnLPct      float64
	Highest     float64
	HoldingDays int
	Price       float64
}

// Context names resolvable in conditions beyond indicator tokens.
var contextNames = map[string]struct{}{
	"pnl_pct":          {},
	"position_highest": {},
	"holding_days":     {},
	"current_price":    {},
}

// Evaluator binds a strategy document to an indicator library and answers
// one verdict per row in strict priority order: hard stop, hard target,
// exit scenarios in declared order, then entry scenarios when flat.
type Evaluator struct {
	cfg *Config
	lib *indicators.Library
}

// NewEvaluator validates every indicator token the document references
// against the library's grammar before returning. An unknown token fails the
// construction, not the first day that touches it.
func NewEvaluator(cfg *Config, lib *indicators.Library) (*Evaluator, error) {
	var names []string
	collect := func(sc Scenario) {
		for _, cond := range sc.Rules {
			names = append(names, cond.Indicator)
			if _, isNum := cond.Value.Literal(); !isNum {
				names = append(names, identifiers(cond.Value.Raw)...)
			}
		}
	}
	for _, sc := range cfg.EntryRules {
		collect(sc)
	}
	for _, sc := range cfg.ExitRules.Signals {
		collect(sc)
	}
	indicatorNames := names[:0]
	for _, n := range names {
		if _, ok := contextNames[n]; ok {
			continue
		}
		indicatorNames = append(indicatorNames, n)
	}
	if err := lib.Validate(indicatorNames); err != nil {
		return nil, fmt.Errorf("strategy %q: %w", cfg.Name, err)
	}
	return &Evaluator{cfg: cfg, lib: lib}, nil
}

// Config returns the bound document.
func (e *Evaluator) Config() *Config { return e.cfg }

// Evaluate produces the verdict for row i given the current position state.
func (e *Evaluator) Evaluate(i int, pos PositionContext) Verdict {
	if pos.Open {
		if sl := e.cfg.ExitRules.HardStopLossPct; sl > 0 && pos.PnLPct <= -sl {
			return Verdict{ActionSell, fmt.Sprintf("hard stop loss: pnl %.2f%% <= -%.2f%%", pos.PnLPct, sl)}
		}
		if tp := e.cfg.ExitRules.HardTakeProfitPct; tp > 0 && pos.PnLPct >= tp {
			return Verdict{ActionSell, fmt.Sprintf("hard take profit: pnl %.2f%% >= %.2f%%", pos.PnLPct, tp)}
		}
		for _, sc := range e.cfg.ExitRules.Signals {
			if e.scenarioHolds(sc, i, pos) {
				return Verdict{ActionSell, fmt.Sprintf("exit signal: %s", sc.Name)}
			}
		}
		return Verdict{ActionHold, "position open, no exit condition met"}
	}
	for _, sc := range e.cfg.EntryRules {
		if e.scenarioHolds(sc, i, pos) {
			return Verdict{ActionBuy, fmt.Sprintf("entry scenario: %s", sc.Name)}
		}
	}
	return Verdict{ActionHold, "no entry scenario met"}
}

func (e *Evaluator) scenarioHolds(sc Scenario, i int, pos PositionContext) bool {
	for _, cond := range sc.Rules {
		if !e.conditionHolds(cond, i, pos) {
			return false
		}
	}
	return true
}

func (e *Evaluator) conditionHolds(cond Condition, i int, pos PositionContext) bool {
	lookup := func(name string) (float64, bool) {
		return e.resolveToken(name, i, pos)
	}
	left, ok := lookup(cond.Indicator)
	if !ok || math.IsNaN(left) {
		return false
	}
	var right float64
	if v, isNum := cond.Value.Literal(); isNum {
		right = v
	} else {
		v, ok := resolveExpression(cond.Value.Raw, lookup)
		if !ok {
			// unresolvable right side degrades the condition to false,
			// it does not abort the run
			return false
		}
		right = v
	}
	if math.IsNaN(right) {
		return false
	}
	switch cond.Comparator {
	case "<":
		return left < right
	case ">":
		return left > right
	case "<=":
		return left <= right
	case ">=":
		return left >= right
	case "==":
		return left == right
	case "!=":
		return left != right
	}
	return false
}

func (e *Evaluator) resolveToken(name string, i int, pos PositionContext) (float64, bool) {
	switch name {
	case "pnl_pct":
		return pos.PnLPct, true
	case "position_highest":
		return pos.Highest, true
	case "holding_days":
		return float64(pos.HoldingDays), true
	case "current_price":
		return pos.Price, true
	}
	v, err := e.lib.Value(name, i)
	if err != nil {
		return 0, false
	}
	return v, true
}
