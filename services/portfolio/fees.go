// Package portfolio implements the cash/position ledger with A-share
// settlement semantics: board-lot rounding, T+1 sell restriction,
// weighted-average cost basis, and commission/stamp-duty/transfer-fee
// accounting. All money is decimal; nothing here touches float64.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/market"
)

// FeeSchedule holds the per-side fee rates. Stamp duty is charged on sells
// only and never on ETFs; the transfer fee applies to Shanghai-listed
// instruments on sells.
type FeeSchedule struct {
	CommissionRate  decimal.Decimal
	StampDutyRate   decimal.Decimal
	TransferFeeRate decimal.Decimal
}

// DefaultFeeSchedule returns the standard A-share retail rates.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		CommissionRate:  decimal.NewFromFloat(0.0003),
		StampDutyRate:   decimal.NewFromFloat(0.0005),
		TransferFeeRate: decimal.NewFromFloat(0.00001),
	}
}

// Fees is the per-trade fee breakdown.
type Fees struct {
	Commission  decimal.Decimal
	StampDuty   decimal.Decimal
	TransferFee decimal.Decimal
}

// Total sums the breakdown.
func (f Fees) Total() decimal.Decimal {
	return f.Commission.Add(f.StampDuty).Add(f.TransferFee)
}

// Add accumulates another breakdown into f.
func (f Fees) Add(other Fees) Fees {
	return Fees{
		Commission:  f.Commission.Add(other.Commission),
		StampDuty:   f.StampDuty.Add(other.StampDuty),
		TransferFee: f.TransferFee.Add(other.TransferFee),
	}
}

// BuyFees computes the cost of a buy: commission only.
func (s FeeSchedule) BuyFees(notional decimal.Decimal) Fees {
	return Fees{Commission: notional.Mul(s.CommissionRate)}
}

// SellFees computes the cost of a sell for the given symbol.
func (s FeeSchedule) SellFees(symbol string, notional decimal.Decimal) Fees {
	f := Fees{Commission: notional.Mul(s.CommissionRate)}
	if !market.IsETF(symbol) {
		f.StampDuty = notional.Mul(s.StampDutyRate)
	}
	if market.InferExchange(symbol) == market.ExchangeShanghai {
		f.TransferFee = notional.Mul(s.TransferFeeRate)
	}
	return f
}

// SellRate returns the combined sell-side rate for the symbol, used by
// affordability math in the risk gate.
func (s FeeSchedule) SellRate(symbol string) decimal.Decimal {
	r := s.CommissionRate
	if !market.IsETF(symbol) {
		r = r.Add(s.StampDutyRate)
	}
	if market.InferExchange(symbol) == market.ExchangeShanghai {
		r = r.Add(s.TransferFeeRate)
	}
	return r
}
