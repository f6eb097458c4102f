// Package strategies holds the built-in trend heuristics: per-day boolean
// classification flags computed from indicator rows. The risk gate uses them
// to size exploratory buys and force trend-invalidation exits, and the
// decision provider receives them verbatim so an external brain can weigh
// the same facts the gate does.
package strategies

import "math"

// Thresholds tunes the flag computation. Calibrations here are empirical
// strategy tuning, kept as fields so different runs can disagree.
type Thresholds struct {
	TrendRSI12         float64 // strict trend buy needs rsi_12 at or above this
	ExploratoryRSI12   float64 // exploratory buy needs rsi_12 at or above this
	MeanRevRSI6        float64 // mean reversion needs rsi_6 at or below this
	MeanRevBollBand    float64 // price within this ratio of the lower band
	SuperTrendRSI6     float64
	OverboughtRSI6     float64
	OverboughtBollBand float64 // price at or above upper band times this
	MomentumRSI12Lo    float64
	MomentumRSI12Hi    float64
	TrapVolumeRatio    float64 // breakout volume multiple of the 30-day mean
	TrapChangePct      float64 // breakout / crash daily change magnitude
	TrapEMADiscount    float64 // crash when price/ema20 at or below this
	ReleaseRSI6        float64 // cooldown release when rsi_6 below this
	ReleaseEMABand     float64 // or price within [ema20, ema20*(1+band)]
}

// DefaultThresholds returns the tuned values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendRSI12:         55,
		ExploratoryRSI12:   50,
		MeanRevRSI6:        30,
		MeanRevBollBand:    1.01,
		SuperTrendRSI6:     65,
		OverboughtRSI6:     85,
		OverboughtBollBand: 1.02,
		MomentumRSI12Lo:    50,
		MomentumRSI12Hi:    80,
		TrapVolumeRatio:    2.0,
		TrapChangePct:      0.05,
		TrapEMADiscount:    0.95,
		ReleaseRSI6:        40,
		ReleaseEMABand:     0.015,
	}
}

// Row is the indicator snapshot one day of flag computation consumes.
// NaN means the indicator has no value yet.
type Row struct {
	Price          float64
	EMA20          float64
	PrevClose      float64 // previous day's close
	PrevEMA20      float64
	RSI6           float64
	RSI12          float64
	BollUpper      float64
	BollLower      float64
	MACDHist       float64
	PrevMACDHist   float64
	PrevMACDHist2  float64 // two days back
	Volume         float64
	AvgVolume30    float64
	TodayChangePct float64 // close vs prior close, as a ratio
	InBuyCooldown  bool
}

// Flags is the per-day classification set.
type Flags struct {
	TrendBuyStrict       bool `json:"is_trend_buy_strict"`
	ExploratoryBuy       bool `json:"is_exploratory_buy"`
	MeanReversionBuy     bool `json:"is_mean_reversion_buy"`
	ExtremeOverbought    bool `json:"is_extreme_overbought"`
	MomentumBuy          bool `json:"is_momentum_buy"`
	SuperTrend           bool `json:"is_super_trend"`
	TrendInvalidation    bool `json:"is_trend_invalidation_sell"`
	InDowntrendCap       bool `json:"is_in_downtrend_cap"`
	InBuyCooldown        bool `json:"is_in_buy_cooldown"`
	MACDHistRising2Bars  bool `json:"macd_hist_rising_2bars"`
	CloseNearEMA20       bool `json:"close_near_ema20_1pct"`
	BullTrapDisabled     bool `json:"bull_trap_disabled"`
	BearTrapDisabled     bool `json:"bear_trap_disabled"`
	CooldownReleaseMet   bool `json:"is_cooldown_release_met"`
}

// AnyHot reports the states that widen the add-on price band.
func (f Flags) AnyHot() bool {
	return f.SuperTrend || f.MomentumBuy
}

// Compute derives the flag set from one day's row.
func Compute(r Row, t Thresholds) Flags {
	histRising := valid(r.MACDHist, r.PrevMACDHist) && r.MACDHist > r.PrevMACDHist
	histPositive := valid(r.MACDHist) && r.MACDHist > 0
	histRising2 := valid(r.MACDHist, r.PrevMACDHist, r.PrevMACDHist2) &&
		r.PrevMACDHist > r.PrevMACDHist2 && r.MACDHist > r.PrevMACDHist

	aboveEMA := valid(r.Price, r.EMA20) && r.Price > r.EMA20
	belowEMA := valid(r.Price, r.EMA20) && r.Price < r.EMA20
	aboveEMA2d := aboveEMA && valid(r.PrevClose, r.PrevEMA20) && r.PrevClose > r.PrevEMA20

	// A falling red histogram below the EMA disables dip buying.
	meanRevDisabled := belowEMA && valid(r.MACDHist, r.PrevMACDHist) &&
		r.MACDHist < r.PrevMACDHist && r.MACDHist < 0

	f := Flags{
		TrendBuyStrict: histPositive && histRising && aboveEMA2d &&
			valid(r.RSI12) && r.RSI12 >= t.TrendRSI12,
		ExploratoryBuy: !histPositive && histRising && aboveEMA &&
			valid(r.RSI12) && r.RSI12 >= t.ExploratoryRSI12,
		MeanReversionBuy: valid(r.Price, r.BollLower) && r.Price <= r.BollLower*t.MeanRevBollBand &&
			valid(r.RSI6) && r.RSI6 <= t.MeanRevRSI6 && !meanRevDisabled,
		SuperTrend: aboveEMA && valid(r.RSI6) && r.RSI6 >= t.SuperTrendRSI6 && histPositive,
		ExtremeOverbought: valid(r.Price, r.BollUpper) && r.Price >= r.BollUpper*t.OverboughtBollBand &&
			valid(r.RSI6) && r.RSI6 >= t.OverboughtRSI6,
		MomentumBuy: histPositive && histRising &&
			valid(r.RSI12) && r.RSI12 > t.MomentumRSI12Lo && r.RSI12 < t.MomentumRSI12Hi,
		TrendInvalidation:   valid(r.MACDHist, r.PrevMACDHist) && r.MACDHist < r.PrevMACDHist && belowEMA,
		InDowntrendCap:      belowEMA,
		InBuyCooldown:       r.InBuyCooldown,
		MACDHistRising2Bars: histRising2,
		CloseNearEMA20: valid(r.Price, r.EMA20) && r.EMA20 > 0 &&
			math.Abs(r.Price/r.EMA20-1) <= 0.01,
	}

	if valid(r.TodayChangePct) {
		if valid(r.AvgVolume30, r.Volume) && r.AvgVolume30 > 0 &&
			r.Volume >= t.TrapVolumeRatio*r.AvgVolume30 && r.TodayChangePct >= t.TrapChangePct {
			f.BullTrapDisabled = true
		}
		ratio := math.NaN()
		if valid(r.Price, r.EMA20) && r.EMA20 > 0 {
			ratio = r.Price / r.EMA20
		}
		if r.TodayChangePct <= -t.TrapChangePct || (valid(ratio) && ratio <= t.TrapEMADiscount) {
			f.BearTrapDisabled = true
		}
	}

	if valid(r.RSI6) && r.RSI6 < t.ReleaseRSI6 {
		f.CooldownReleaseMet = true
	}
	if valid(r.Price, r.EMA20) && r.Price >= r.EMA20 && r.Price <= r.EMA20*(1+t.ReleaseEMABand) {
		f.CooldownReleaseMet = true
	}
	return f
}

func valid(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return false
		}
	}
	return true
}
