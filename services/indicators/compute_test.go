package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatal("warm-up values should be NaN")
	}
	if !almostEqual(out[2], 2) || !almostEqual(out[4], 4) {
		t.Fatalf("sma = %v", out)
	}
}

func TestEMASeedsFromFirstValue(t *testing.T) {
	x := []float64{10, 10, 10, 10}
	out := EMA(x, 5)
	for i, v := range out {
		if !almostEqual(v, 10) {
			t.Fatalf("ema[%d] = %v on constant input", i, v)
		}
	}
	// alpha = 2/(3+1) = 0.5
	out = EMA([]float64{2, 4}, 3)
	if !almostEqual(out[1], 3) {
		t.Fatalf("ema[1] = %v, want 3", out[1])
	}
}

func TestRSIBoundaries(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6, 7}
	out := RSI(rising, 6)
	if !math.IsNaN(out[5]) {
		t.Fatal("rsi defined before the window fills")
	}
	if !almostEqual(out[6], 100) {
		t.Fatalf("all-gain rsi = %v, want 100", out[6])
	}

	falling := []float64{7, 6, 5, 4, 3, 2, 1}
	out = RSI(falling, 6)
	if !almostEqual(out[6], 0) {
		t.Fatalf("all-loss rsi = %v, want 0", out[6])
	}

	flat := []float64{5, 5, 5, 5, 5, 5, 5}
	out = RSI(flat, 6)
	if !almostEqual(out[6], 50) {
		t.Fatalf("flat rsi = %v, want 50", out[6])
	}

	mixed := []float64{10, 11, 10, 11, 10, 11, 10}
	out = RSI(mixed, 6)
	if out[6] <= 0 || out[6] >= 100 {
		t.Fatalf("mixed rsi = %v, want interior value", out[6])
	}
}

func TestMACDHistogram(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = 10 + float64(i)*0.5
	}
	dif, dea, hist := MACD(x)
	// sustained uptrend: fast EMA above slow, histogram positive
	last := len(x) - 1
	if dif[last] <= 0 {
		t.Fatalf("dif = %v in uptrend", dif[last])
	}
	if !almostEqual(hist[last], 2*(dif[last]-dea[last])) {
		t.Fatal("hist is not 2*(dif-dea)")
	}
}

func TestKDJFlatWindow(t *testing.T) {
	n := 12
	high := make([]float64, n)
	low := make([]float64, n)
	cls := make([]float64, n)
	for i := range high {
		high[i], low[i], cls[i] = 10, 10, 10
	}
	k, d, j := KDJ(high, low, cls)
	last := n - 1
	if !almostEqual(k[last], 50) || !almostEqual(d[last], 50) || !almostEqual(j[last], 50) {
		t.Fatalf("flat kdj = %v %v %v", k[last], d[last], j[last])
	}
}

func TestBollingerSampleStd(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	mid, upper, lower, width := Bollinger(x, 5)
	if !almostEqual(mid[4], 3) {
		t.Fatalf("mid = %v", mid[4])
	}
	// sample std of 1..5 is sqrt(2.5)
	sigma := math.Sqrt(2.5)
	if !almostEqual(upper[4], 3+2*sigma) || !almostEqual(lower[4], 3-2*sigma) {
		t.Fatalf("bands = %v %v", upper[4], lower[4])
	}
	if !almostEqual(width[4], (upper[4]-lower[4])/mid[4]) {
		t.Fatalf("width = %v", width[4])
	}
}

func TestATRUsesPrevClose(t *testing.T) {
	high := []float64{10, 12}
	low := []float64{9, 11}
	cls := []float64{9.5, 11.5}
	out := ATR(high, low, cls, 1)
	// day 1 true range is max(12-11, |12-9.5|, |11-9.5|) = 2.5
	if !almostEqual(out[1], 2.5) {
		t.Fatalf("atr = %v, want 2.5", out[1])
	}
}

func TestRollingExtremesAndShift(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5}
	hi := RollingMax(x, 3)
	lo := RollingMin(x, 3)
	if !almostEqual(hi[4], 5) || !almostEqual(lo[4], 1) {
		t.Fatalf("extremes = %v %v", hi[4], lo[4])
	}
	if !math.IsNaN(hi[1]) {
		t.Fatal("warm-up extreme should be NaN")
	}
	sh := Shift(x)
	if !math.IsNaN(sh[0]) || !almostEqual(sh[1], 3) {
		t.Fatalf("shift = %v", sh)
	}
	if got := Shift(nil); len(got) != 0 {
		t.Fatalf("shift of empty column = %v", got)
	}
}
