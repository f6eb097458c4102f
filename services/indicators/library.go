package indicators

import (
	"fmt"
)

// Library resolves indicator names to computed columns over one frame,
// caching each column so repeated references cost one computation.
type Library struct {
	frame *Frame
	cache map[string][]float64
}

// NewLibrary wraps a frame. The frame must not be mutated afterwards.
func NewLibrary(frame *Frame) *Library {
	return &Library{
		frame: frame,
		cache: make(map[string][]float64),
	}
}

// Frame exposes the underlying columnar data.
func (l *Library) Frame() *Frame { return l.frame }

// Validate parses every name up front and rejects the whole set on the first
// token outside the grammar. Frame factor columns are accepted as raw names.
func (l *Library) Validate(names []string) error {
	for _, name := range names {
		if _, ok := l.frame.Column(name); ok {
			continue
		}
		d, err := Parse(name)
		if err != nil {
			return err
		}
		if err := d.validatePeriod(); err != nil {
			return err
		}
	}
	return nil
}

// Series computes (or returns the cached) column for name.
func (l *Library) Series(name string) ([]float64, error) {
	if col, ok := l.cache[name]; ok {
		return col, nil
	}
	if col, ok := l.frame.Column(name); ok {
		l.cache[name] = col
		return col, nil
	}
	d, err := Parse(name)
	if err != nil {
		return nil, err
	}
	if err := d.validatePeriod(); err != nil {
		return nil, err
	}
	col, err := l.compute(d)
	if err != nil {
		return nil, err
	}
	if d.Lagged {
		col = Shift(col)
	}
	l.cache[name] = col
	return col, nil
}

// Value returns the named column's value at row i.
func (l *Library) Value(name string, i int) (float64, error) {
	col, err := l.Series(name)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(col) {
		return 0, fmt.Errorf("indicator %q: row %d out of range", name, i)
	}
	return col[i], nil
}

func (l *Library) compute(d Descriptor) ([]float64, error) {
	f := l.frame
	switch d.Kind {
	case KindColumn:
		col, ok := f.Column(d.Name)
		if !ok {
			// prev_ wraps base columns too; strip the prefix for lookup
			col, ok = f.Column(stripLag(d.Name))
		}
		if !ok {
			return nil, fmt.Errorf("unknown column %q", d.Name)
		}
		return col, nil
	case KindSMA:
		return SMA(f.Close, d.Period), nil
	case KindEMA:
		return EMA(f.Close, d.Period), nil
	case KindVolSMA:
		return SMA(f.Volume, d.Period), nil
	case KindVolEMA:
		return EMA(f.Volume, d.Period), nil
	case KindRSI:
		return RSI(f.Close, d.Period), nil
	case KindMACD:
		dif, dea, hist := MACD(f.Close)
		switch d.Field {
		case "dif":
			return dif, nil
		case "dea":
			return dea, nil
		default:
			return hist, nil
		}
	case KindKDJ:
		k, dd, j := KDJ(f.High, f.Low, f.Close)
		switch d.Field {
		case "k":
			return k, nil
		case "d":
			return dd, nil
		default:
			return j, nil
		}
	case KindBoll:
		mid, upper, lower, width := Bollinger(f.Close, d.Period)
		switch d.Field {
		case "mid":
			return mid, nil
		case "upper":
			return upper, nil
		case "lower":
			return lower, nil
		default:
			return width, nil
		}
	case KindCCI:
		return CCI(f.High, f.Low, f.Close, d.Period), nil
	case KindATR:
		return ATR(f.High, f.Low, f.Close, d.Period), nil
	case KindHighest:
		return RollingMax(f.High, d.Period), nil
	case KindLowest:
		return RollingMin(f.Low, d.Period), nil
	}
	return nil, fmt.Errorf("indicator %q: unhandled kind", d.Name)
}

func stripLag(name string) string {
	if len(name) > 5 && name[:5] == "prev_" {
		return name[5:]
	}
	return name
}
