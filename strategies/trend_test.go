package strategies

import (
	"math"
	"testing"
)

// healthyUptrend is a row in a confirmed uptrend: price above a rising
// EMA for two days, positive rising histogram, firm RSI.
func healthyUptrend() Row {
	return Row{
		Price: 11, EMA20: 10.5, PrevClose: 10.9, PrevEMA20: 10.4,
		RSI6: 60, RSI12: 58,
		BollUpper: 11.5, BollLower: 9.5,
		MACDHist: 0.05, PrevMACDHist: 0.03, PrevMACDHist2: 0.01,
		Volume: 1000, AvgVolume30: 900, TodayChangePct: 0.009,
	}
}

func TestTrendBuyStrict(t *testing.T) {
	th := DefaultThresholds()
	f := Compute(healthyUptrend(), th)
	if !f.TrendBuyStrict {
		t.Fatal("healthy uptrend should be a strict trend buy")
	}
	if !f.MACDHistRising2Bars {
		t.Fatal("two rising histogram bars expected")
	}
	if f.ExploratoryBuy {
		t.Fatal("positive histogram rules out exploratory buy")
	}
	if f.TrendInvalidation || f.InDowntrendCap {
		t.Fatal("uptrend should not flag invalidation")
	}

	// yesterday below the EMA breaks the two-day confirmation
	r := healthyUptrend()
	r.PrevClose = 10.3
	if Compute(r, th).TrendBuyStrict {
		t.Fatal("single-day cross is not a strict trend buy")
	}

	// weak RSI12 breaks it too
	r = healthyUptrend()
	r.RSI12 = 54
	if Compute(r, th).TrendBuyStrict {
		t.Fatal("rsi_12 below threshold is not a strict trend buy")
	}
}

func TestExploratoryBuy(t *testing.T) {
	r := healthyUptrend()
	r.MACDHist, r.PrevMACDHist = -0.02, -0.04 // red but improving
	r.RSI12 = 52
	f := Compute(r, DefaultThresholds())
	if !f.ExploratoryBuy {
		t.Fatal("improving red histogram above EMA should be exploratory")
	}
	if f.TrendBuyStrict {
		t.Fatal("red histogram cannot be a strict trend buy")
	}
}

func TestMeanReversionBuy(t *testing.T) {
	th := DefaultThresholds()
	r := Row{
		Price: 9.5, EMA20: 10.5, BollUpper: 11.5, BollLower: 9.5,
		RSI6: 25, RSI12: 35,
		MACDHist: -0.02, PrevMACDHist: -0.01,
	}
	// falling red histogram below the EMA disables dip buying
	if Compute(r, th).MeanReversionBuy {
		t.Fatal("falling red histogram should disable mean reversion")
	}
	r.MACDHist, r.PrevMACDHist = -0.01, -0.02 // improving
	if !Compute(r, th).MeanReversionBuy {
		t.Fatal("oversold at the lower band should be a mean reversion buy")
	}
}

func TestHotStates(t *testing.T) {
	th := DefaultThresholds()
	r := healthyUptrend()
	r.RSI6 = 70
	f := Compute(r, th)
	if !f.SuperTrend || !f.AnyHot() {
		t.Fatal("hot rsi_6 above EMA with green histogram is super trend")
	}

	r = healthyUptrend()
	r.Price = 11.8 // above upper band * 1.02
	r.RSI6 = 90
	f = Compute(r, th)
	if !f.ExtremeOverbought {
		t.Fatal("blow-off above the band should flag overbought")
	}
}

func TestTrendInvalidation(t *testing.T) {
	r := Row{
		Price: 9.8, EMA20: 10.2,
		MACDHist: -0.02, PrevMACDHist: 0.01,
		RSI6: 45, RSI12: 45,
		BollUpper: 11, BollLower: 9,
	}
	f := Compute(r, DefaultThresholds())
	if !f.TrendInvalidation {
		t.Fatal("falling histogram below EMA should invalidate the trend")
	}
	if !f.InDowntrendCap {
		t.Fatal("below EMA should cap buys")
	}
}

func TestTrapFilters(t *testing.T) {
	th := DefaultThresholds()
	r := healthyUptrend()
	r.Volume, r.AvgVolume30 = 2000, 900
	r.TodayChangePct = 0.06
	if !Compute(r, th).BullTrapDisabled {
		t.Fatal("volume spike with a 6% pop should disable breakouts")
	}

	r = healthyUptrend()
	r.TodayChangePct = -0.06
	if !Compute(r, th).BearTrapDisabled {
		t.Fatal("a 6% crash should disable bear-trap dip buys")
	}

	r = healthyUptrend()
	r.Price, r.EMA20 = 9.4, 10 // 6% below the EMA
	r.TodayChangePct = -0.01
	if !Compute(r, th).BearTrapDisabled {
		t.Fatal("deep EMA discount should disable bear-trap dip buys")
	}
}

func TestCooldownRelease(t *testing.T) {
	th := DefaultThresholds()
	r := healthyUptrend()
	r.RSI6 = 35
	if !Compute(r, th).CooldownReleaseMet {
		t.Fatal("washed-out rsi_6 releases the cooldown")
	}
	r = healthyUptrend()
	r.Price, r.EMA20 = 10.1, 10 // within the 1.5% band above the EMA
	if !Compute(r, th).CooldownReleaseMet {
		t.Fatal("pullback to the EMA releases the cooldown")
	}
	r = healthyUptrend()
	r.Price, r.EMA20, r.RSI6 = 11, 10, 60
	if Compute(r, th).CooldownReleaseMet {
		t.Fatal("extended price with firm rsi keeps the cooldown")
	}
}

func TestNaNRowsStayQuiet(t *testing.T) {
	nan := math.NaN()
	r := Row{Price: 10, EMA20: nan, RSI6: nan, RSI12: nan,
		BollUpper: nan, BollLower: nan, MACDHist: nan, PrevMACDHist: nan,
		PrevMACDHist2: nan, Volume: nan, AvgVolume30: nan, TodayChangePct: nan}
	f := Compute(r, DefaultThresholds())
	if f != (Flags{}) {
		t.Fatalf("warm-up row produced flags: %+v", f)
	}
}
