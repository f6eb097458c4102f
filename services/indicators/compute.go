package indicators

import "math"

// SMA returns the n-period simple moving average; NaN until the window fills.
func SMA(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	if n < 1 {
		return out
	}
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= n {
			sum -= x[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA returns the span-form exponential moving average with alpha = 2/(n+1),
// seeded from the first value.
func EMA(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the oscillator from n-period rolling means of gains and
// losses. Boundary rules: no losses and some gain is 100, no gains and some
// loss is 0, a perfectly flat window is 50. Undefined until the window fills.
func RSI(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	if n < 1 || len(x) < 2 {
		return out
	}
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	var gainSum, lossSum float64
	for i := 1; i < len(x); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > n {
			gainSum -= gains[i-n]
			lossSum -= losses[i-n]
		}
		if i < n {
			continue
		}
		avgGain := gainSum / float64(n)
		avgLoss := lossSum / float64(n)
		switch {
		case avgLoss == 0 && avgGain > 0:
			out[i] = 100
		case avgGain == 0 && avgLoss > 0:
			out[i] = 0
		case avgGain == 0 && avgLoss == 0:
			out[i] = 50
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACD returns the DIF line (EMA12-EMA26), DEA signal (EMA9 of DIF) and
// histogram 2*(DIF-DEA).
func MACD(x []float64) (dif, dea, hist []float64) {
	fast := EMA(x, 12)
	slow := EMA(x, 26)
	dif = make([]float64, len(x))
	for i := range x {
		dif[i] = fast[i] - slow[i]
	}
	dea = EMA(dif, 9)
	hist = make([]float64, len(x))
	for i := range x {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist
}

// KDJ computes the 9-period stochastic with 1/3 exponential smoothing.
func KDJ(high, low, close []float64) (k, d, j []float64) {
	const n = 9
	hh := RollingMax(high, n)
	ll := RollingMin(low, n)
	rsv := nanSlice(len(close))
	for i := range close {
		if math.IsNaN(hh[i]) || math.IsNaN(ll[i]) {
			continue
		}
		span := hh[i] - ll[i]
		if span == 0 {
			rsv[i] = 50
		} else {
			rsv[i] = (close[i] - ll[i]) / span * 100
		}
	}
	k = ewmAlpha(rsv, 1.0/3.0)
	d = ewmAlpha(k, 1.0/3.0)
	j = nanSlice(len(close))
	for i := range close {
		if !math.IsNaN(k[i]) && !math.IsNaN(d[i]) {
			j[i] = 3*k[i] - 2*d[i]
		}
	}
	return k, d, j
}

// CCI computes the commodity channel index over n periods of typical price.
func CCI(high, low, close []float64, n int) []float64 {
	out := nanSlice(len(close))
	if n < 1 {
		return out
	}
	tp := make([]float64, len(close))
	for i := range close {
		tp[i] = (high[i] + low[i] + close[i]) / 3
	}
	for i := n - 1; i < len(tp); i++ {
		window := tp[i-n+1 : i+1]
		var mean float64
		for _, v := range window {
			mean += v
		}
		mean /= float64(n)
		var mad float64
		for _, v := range window {
			mad += math.Abs(v - mean)
		}
		mad /= float64(n)
		if mad == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - mean) / (0.015 * mad)
	}
	return out
}

// ATR is the n-period rolling mean of true range.
func ATR(high, low, close []float64, n int) []float64 {
	tr := make([]float64, len(close))
	for i := range close {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return SMA(tr, n)
}

// Bollinger returns the 20-period bands: mid, upper, lower and the width
// ratio (upper-lower)/mid. Standard deviation is the sample form.
func Bollinger(x []float64, n int) (mid, upper, lower, width []float64) {
	mid = SMA(x, n)
	upper = nanSlice(len(x))
	lower = nanSlice(len(x))
	width = nanSlice(len(x))
	for i := n - 1; i < len(x); i++ {
		var variance float64
		for j := i - n + 1; j <= i; j++ {
			d := x[j] - mid[i]
			variance += d * d
		}
		if n > 1 {
			variance /= float64(n - 1)
		}
		sigma := math.Sqrt(variance)
		upper[i] = mid[i] + 2*sigma
		lower[i] = mid[i] - 2*sigma
		if mid[i] != 0 {
			width[i] = (upper[i] - lower[i]) / mid[i]
		}
	}
	return mid, upper, lower, width
}

// RollingMax returns the n-period highest value; NaN until the window fills.
func RollingMax(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	for i := n - 1; i < len(x); i++ {
		m := x[i]
		for j := i - n + 1; j < i; j++ {
			if x[j] > m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

// RollingMin returns the n-period lowest value; NaN until the window fills.
func RollingMin(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	for i := n - 1; i < len(x); i++ {
		m := x[i]
		for j := i - n + 1; j < i; j++ {
			if x[j] < m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

// Shift lags x by one row; the first value becomes NaN.
func Shift(x []float64) []float64 {
	out := nanSlice(len(x))
	if len(x) == 0 {
		return out
	}
	copy(out[1:], x[:len(x)-1])
	return out
}

// ewmAlpha smooths x with the given alpha, seeding from the first non-NaN
// value and leaving the leading NaN prefix untouched.
func ewmAlpha(x []float64, alpha float64) []float64 {
	out := nanSlice(len(x))
	seeded := false
	var prev float64
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
