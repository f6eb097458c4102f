package decision

import (
	"context"
	"math"

	"github.com/buuzzy/AITrading/services/strategy"
)

// RuleProvider turns a bound strategy evaluator into a decision provider.
// Buy quantity follows the document's position sizing; sells clear the whole
// position (the risk gate may still clamp either).
type RuleProvider struct {
	eval           *strategy.Evaluator
	commissionRate float64
	lotSize        int64
}

// NewRuleProvider wraps an evaluator. commissionRate enters the sizing math
// so a full-size buy stays affordable after fees.
func NewRuleProvider(eval *strategy.Evaluator, commissionRate float64, lotSize int64) *RuleProvider {
	if lotSize <= 0 {
		lotSize = 100
	}
	return &RuleProvider{eval: eval, commissionRate: commissionRate, lotSize: lotSize}
}

// Decide evaluates the day's rules. It never fails; rule evaluation is local
// and total.
func (p *RuleProvider) Decide(_ context.Context, day *Context) (Decision, error) {
	pc := strategy.PositionContext{Price: day.Price}
	if day.Position != nil {
		pc.Open = true
		pc.PnLPct = day.Position.PnLPct
		pc.Highest = day.Position.Highest
		pc.HoldingDays = day.Position.HoldingDays
	}
	v := p.eval.Evaluate(day.Row, pc)

	d := Decision{
		Signal:    Signal(v.Action),
		Leverage:  1,
		Rationale: v.Reason,
	}
	switch v.Action {
	case strategy.ActionBuy:
		d.QuantityLots = p.sizeBuyLots(day)
		d.Confidence = 0.9
	case strategy.ActionSell:
		if day.Position != nil {
			d.QuantityLots = day.Position.Quantity / p.lotSize
		}
		d.Confidence = 0.9
	}
	return d, nil
}

// sizeBuyLots allocates the configured equity fraction:
// floor(total*pct / (price*(1+commission)) / lot) lots, clamped to cash.
func (p *RuleProvider) sizeBuyLots(day *Context) int64 {
	sizing := p.eval.Config().PositionSizing
	if day.Price <= 0 {
		return 0
	}
	perShare := day.Price * (1 + p.commissionRate)
	budget := day.Account.TotalAsset * sizing.Value / 100
	if budget > day.Account.AvailableCash {
		budget = day.Account.AvailableCash
	}
	lots := int64(math.Floor(budget / (perShare * float64(p.lotSize))))
	if lots < 0 {
		return 0
	}
	return lots
}
