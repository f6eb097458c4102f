package indicators

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind enumerates the indicator families the registry can compute.
type Kind int

const (
	KindColumn Kind = iota // raw price/volume/factor column
	KindSMA
	KindEMA
	KindVolSMA
	KindVolEMA
	KindRSI
	KindMACD    // field: dif, dea, hist
	KindKDJ     // field: k, d, j
	KindBoll    // field: upper, mid, lower, width
	KindCCI
	KindATR
	KindHighest
	KindLowest
)

// Descriptor is a parsed indicator name: family, window parameter, optional
// sub-field, and whether the value is lagged one day (prev_ prefix).
type Descriptor struct {
	Name   string // original token
	Kind   Kind
	Period int
	Field  string
	Lagged bool
}

var (
	reMA    = regexp.MustCompile(`^(ema|sma)_(\d+)$`)
	reVolMA = regexp.MustCompile(`^(ema|sma)_vol_(\d+)$`)
	reRSI   = regexp.MustCompile(`^rsi_(\d+)$`)
	reATR   = regexp.MustCompile(`^atr_(\d+)$`)
	reCCI   = regexp.MustCompile(`^cci(?:_(\d+))?$`)
	reExt   = regexp.MustCompile(`^(high|low)_(\d+)$`)
)

// Parse maps an indicator token to its descriptor. Tokens outside the grammar
// return an error; callers must treat that as a configuration failure before
// any simulation starts.
func Parse(name string) (Descriptor, error) {
	token := strings.ToLower(strings.TrimSpace(name))
	if token == "" {
		return Descriptor{}, fmt.Errorf("empty indicator name")
	}
	d := Descriptor{Name: token}
	if rest, ok := strings.CutPrefix(token, "prev_"); ok {
		inner, err := Parse(rest)
		if err != nil {
			return Descriptor{}, fmt.Errorf("lagged indicator %q: %w", name, err)
		}
		inner.Name = token
		inner.Lagged = true
		return inner, nil
	}

	switch token {
	case "open", "high", "low", "close", "vol", "volume":
		d.Kind = KindColumn
		return d, nil
	case "macd":
		d.Kind, d.Field = KindMACD, "hist"
		return d, nil
	case "macd_dif":
		d.Kind, d.Field = KindMACD, "dif"
		return d, nil
	case "macd_dea":
		d.Kind, d.Field = KindMACD, "dea"
		return d, nil
	case "kdj_k", "kdj_d", "kdj_j":
		d.Kind, d.Field = KindKDJ, strings.TrimPrefix(token, "kdj_")
		return d, nil
	case "boll_upper", "boll_mid", "boll_lower", "boll_width":
		d.Kind, d.Field = KindBoll, strings.TrimPrefix(token, "boll_")
		d.Period = 20
		return d, nil
	}

	if m := reVolMA.FindStringSubmatch(token); m != nil {
		if m[1] == "ema" {
			d.Kind = KindVolEMA
		} else {
			d.Kind = KindVolSMA
		}
		d.Period = mustAtoi(m[2])
		return d, nil
	}
	if m := reMA.FindStringSubmatch(token); m != nil {
		if m[1] == "ema" {
			d.Kind = KindEMA
		} else {
			d.Kind = KindSMA
		}
		d.Period = mustAtoi(m[2])
		return d, nil
	}
	if m := reRSI.FindStringSubmatch(token); m != nil {
		d.Kind, d.Period = KindRSI, mustAtoi(m[1])
		return d, nil
	}
	if m := reATR.FindStringSubmatch(token); m != nil {
		d.Kind, d.Period = KindATR, mustAtoi(m[1])
		return d, nil
	}
	if m := reCCI.FindStringSubmatch(token); m != nil {
		d.Kind, d.Period = KindCCI, 14
		if m[1] != "" {
			d.Period = mustAtoi(m[1])
		}
		return d, nil
	}
	if m := reExt.FindStringSubmatch(token); m != nil {
		if m[1] == "high" {
			d.Kind = KindHighest
		} else {
			d.Kind = KindLowest
		}
		d.Period = mustAtoi(m[2])
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("unsupported indicator name %q", name)
}

func (d Descriptor) validatePeriod() error {
	switch d.Kind {
	case KindSMA, KindEMA, KindVolSMA, KindVolEMA, KindRSI, KindATR, KindCCI, KindHighest, KindLowest:
		if d.Period < 1 {
			return fmt.Errorf("indicator %q: window must be >= 1", d.Name)
		}
	}
	return nil
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
