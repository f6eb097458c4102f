package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/market"
)

// SlippageModel prices an execution against the day's bar.
type SlippageModel interface {
	// BuyFill returns the effective buy price for the bar.
	BuyFill(bar market.PriceBar) decimal.Decimal
	// SellFill returns the effective sell price for the bar.
	SellFill(bar market.PriceBar) decimal.Decimal
}

// RatioSlippage fills buys slightly above close (clamped to the day's high)
// and sells slightly below close (clamped to the day's low).
type RatioSlippage struct {
	Rate decimal.Decimal
}

// NewRatioSlippage returns the model with the given rate (e.g. 0.001).
func NewRatioSlippage(rate float64) RatioSlippage {
	return RatioSlippage{Rate: decimal.NewFromFloat(rate)}
}

func (m RatioSlippage) BuyFill(bar market.PriceBar) decimal.Decimal {
	p := bar.Close.Mul(decimal.NewFromInt(1).Add(m.Rate))
	if p.GreaterThan(bar.High) {
		return bar.High
	}
	return p
}

func (m RatioSlippage) SellFill(bar market.PriceBar) decimal.Decimal {
	p := bar.Close.Mul(decimal.NewFromInt(1).Sub(m.Rate))
	if p.LessThan(bar.Low) {
		return bar.Low
	}
	return p
}
