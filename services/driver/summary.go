package driver

import (
	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/portfolio"
)

// Summary is the end-of-range report.
type Summary struct {
	RunID           string
	Symbol          string
	DaysProcessed   int
	InitialCash     decimal.Decimal
	FinalTotalAsset decimal.Decimal
	RealizedPnL     decimal.Decimal
	Fees            portfolio.Fees
	TradesWon       int
	TradesLost      int
	GrossProfit     decimal.Decimal
	GrossLoss       decimal.Decimal
	ProfitFactor    decimal.Decimal
	WinRate         decimal.Decimal
	StopReason      string
}

func newSummary(runID, symbol string, initialCash decimal.Decimal) *Summary {
	return &Summary{RunID: runID, Symbol: symbol, InitialCash: initialCash}
}

// addSell books one realized exit into the counters.
func (s *Summary) addSell(realized decimal.Decimal, fees portfolio.Fees) {
	s.RealizedPnL = s.RealizedPnL.Add(realized)
	s.Fees = s.Fees.Add(fees)
	if realized.GreaterThan(decimal.Zero) {
		s.TradesWon++
		s.GrossProfit = s.GrossProfit.Add(realized)
	} else {
		s.TradesLost++
		s.GrossLoss = s.GrossLoss.Add(realized.Abs())
	}
}

// addBuy books buy-side fees.
func (s *Summary) addBuy(fees portfolio.Fees) {
	s.Fees = s.Fees.Add(fees)
}

// finalize computes the derived ratios.
func (s *Summary) finalize(finalTotal decimal.Decimal) {
	s.FinalTotalAsset = finalTotal
	if s.GrossLoss.GreaterThan(decimal.Zero) {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss)
	} else {
		// no losing trades; report gross profit as the factor
		s.ProfitFactor = s.GrossProfit
	}
	closed := s.TradesWon + s.TradesLost
	if closed > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.TradesWon)).
			Div(decimal.NewFromInt(int64(closed))).
			Mul(decimal.NewFromInt(100))
	}
}
