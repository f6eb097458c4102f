// Package market holds the daily price data model for A-share instruments:
// OHLCV bars, symbol/exchange classification, and trading-calendar helpers
// derived from the loaded bar index.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical trading-day format used across the service.
const DateLayout = "2006-01-02"

// PriceBar is one trading day of OHLCV plus optional vendor factor columns.
// Bars are immutable once loaded, ordered by date and unique per date.
type PriceBar struct {
	Date    time.Time
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
	Factors map[string]float64
}

// DateString returns the bar's day in canonical form.
func (b PriceBar) DateString() string {
	return b.Date.Format(DateLayout)
}

// Day truncates t to midnight UTC so bar dates compare by calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a canonical trading-day string.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
