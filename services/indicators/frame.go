// Package indicators computes named technical-indicator columns over daily
// bar history. Indicator names form a closed grammar parsed into descriptors
// up front; anything outside the grammar is a configuration error, never a
// silent zero. Missing warm-up values are NaN.
package indicators

import (
	"math"
	"time"

	"github.com/buuzzy/AITrading/services/market"
)

// Frame is the columnar view of a bar history that indicator computations
// run against.
type Frame struct {
	Dates   []time.Time
	Open    []float64
	High    []float64
	Low     []float64
	Close   []float64
	Volume  []float64
	Factors map[string][]float64
}

// NewFrame flattens bars into float columns. Vendor factor columns missing on
// some days become NaN there.
func NewFrame(bars []market.PriceBar) *Frame {
	n := len(bars)
	f := &Frame{
		Dates:  make([]time.Time, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	factorNames := map[string]struct{}{}
	for _, b := range bars {
		for name := range b.Factors {
			factorNames[name] = struct{}{}
		}
	}
	if len(factorNames) > 0 {
		f.Factors = make(map[string][]float64, len(factorNames))
		for name := range factorNames {
			col := make([]float64, n)
			for i := range col {
				col[i] = math.NaN()
			}
			f.Factors[name] = col
		}
	}
	for i, b := range bars {
		f.Dates[i] = b.Date
		f.Open[i] = b.Open.InexactFloat64()
		f.High[i] = b.High.InexactFloat64()
		f.Low[i] = b.Low.InexactFloat64()
		f.Close[i] = b.Close.InexactFloat64()
		f.Volume[i] = b.Volume.InexactFloat64()
		for name, v := range b.Factors {
			f.Factors[name][i] = v
		}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Close) }

// Column returns a base price/volume column by name, if it is one.
func (f *Frame) Column(name string) ([]float64, bool) {
	switch name {
	case "open":
		return f.Open, true
	case "high":
		return f.High, true
	case "low":
		return f.Low, true
	case "close":
		return f.Close, true
	case "vol", "volume":
		return f.Volume, true
	}
	col, ok := f.Factors[name]
	return col, ok
}
