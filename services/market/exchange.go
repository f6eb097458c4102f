package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Exchange identifies the venue an A-share symbol trades on.
type Exchange int

const (
	ExchangeUnknown Exchange = iota
	ExchangeShanghai
	ExchangeShenzhen
)

func (e Exchange) String() string {
	switch e {
	case ExchangeShanghai:
		return "SH"
	case ExchangeShenzhen:
		return "SZ"
	default:
		return "UNKNOWN"
	}
}

var (
	shanghaiPrefixes = []string{"600", "601", "603", "605", "688", "510", "512", "513", "515", "518"}
	shenzhenPrefixes = []string{"000", "001", "002", "003", "300", "159", "150"}
	etfPrefixes      = []string{"510", "512", "513", "515", "518", "159", "150"}
	// Registration-system boards (ChiNext, STAR) trade with a wider daily limit.
	registrationPrefixes = []string{"300", "688"}
)

// NormalizeSymbol strips venue suffixes/prefixes ("600519.SH", "sh600519")
// down to the bare six-digit code.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(strings.ToUpper(symbol))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "SH")
	s = strings.TrimPrefix(s, "SZ")
	return s
}

// InferExchange classifies a symbol by its code prefix. Codes starting with
// '6' default to Shanghai when no explicit prefix matches.
func InferExchange(symbol string) Exchange {
	code := NormalizeSymbol(symbol)
	for _, p := range shanghaiPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeShanghai
		}
	}
	for _, p := range shenzhenPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeShenzhen
		}
	}
	if strings.HasPrefix(code, "6") {
		return ExchangeShanghai
	}
	return ExchangeUnknown
}

// IsETF reports whether the symbol is an exchange-traded fund. ETFs are
// exempt from stamp duty.
func IsETF(symbol string) bool {
	code := NormalizeSymbol(symbol)
	for _, p := range etfPrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// LimitThreshold returns the daily price-limit ratio for the symbol's board:
// 9.8% on the main boards, 19.5% on the registration-system boards.
func LimitThreshold(symbol string) decimal.Decimal {
	code := NormalizeSymbol(symbol)
	for _, p := range registrationPrefixes {
		if strings.HasPrefix(code, p) {
			return decimal.NewFromFloat(0.195)
		}
	}
	return decimal.NewFromFloat(0.098)
}

// IsSealedLimitDown reports a bar that opened and stayed pinned at the
// downside limit: open == high == low with the drop beyond the board
// threshold. A sell routed into such a bar could not have filled.
func IsSealedLimitDown(symbol string, bar PriceBar, prevClose decimal.Decimal) bool {
	if prevClose.IsZero() {
		return false
	}
	if !bar.Open.Equal(bar.High) || !bar.Open.Equal(bar.Low) {
		return false
	}
	change := bar.Close.Sub(prevClose).Div(prevClose)
	return change.LessThanOrEqual(LimitThreshold(symbol).Neg())
}
