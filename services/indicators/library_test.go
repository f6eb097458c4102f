package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/market"
)

func testBars(n int) []market.PriceBar {
	bars := make([]market.PriceBar, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := decimal.NewFromFloat(10 + float64(i)*0.1)
		bars[i] = market.PriceBar{
			Date:   base.AddDate(0, 0, i),
			Open:   p,
			High:   p.Add(decimal.NewFromFloat(0.2)),
			Low:    p.Sub(decimal.NewFromFloat(0.2)),
			Close:  p,
			Volume: decimal.NewFromInt(int64(1000 + i)),
			Factors: map[string]float64{
				"pe": float64(20 + i),
			},
		}
	}
	return bars
}

func TestParseGrammar(t *testing.T) {
	good := []string{
		"close", "vol", "ema_20", "sma_5", "ema_vol_30", "rsi_6",
		"atr_14", "cci", "cci_20", "high_20", "low_10",
		"macd", "macd_dif", "macd_dea", "kdj_k", "kdj_j",
		"boll_upper", "boll_width", "prev_close", "prev_rsi_12",
	}
	for _, name := range good {
		if _, err := Parse(name); err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
	}
	bad := []string{"", "ema", "ema_", "rsi", "macd_x", "boll", "foo_12", "prev_", "prev_foo"}
	for _, name := range bad {
		if _, err := Parse(name); err == nil {
			t.Fatalf("Parse(%q) should fail", name)
		}
	}
}

func TestParseDefaults(t *testing.T) {
	d, err := Parse("cci")
	if err != nil {
		t.Fatal(err)
	}
	if d.Period != 14 {
		t.Fatalf("cci default period = %d", d.Period)
	}
	d, _ = Parse("prev_ema_20")
	if !d.Lagged || d.Kind != KindEMA || d.Period != 20 {
		t.Fatalf("prev_ema_20 = %+v", d)
	}
}

func TestLibraryValidate(t *testing.T) {
	lib := NewLibrary(NewFrame(testBars(30)))
	if err := lib.Validate([]string{"close", "ema_20", "pe", "prev_rsi_6"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := lib.Validate([]string{"close", "bogus_42"}); err == nil {
		t.Fatal("unknown name should fail validation")
	}
	if err := lib.Validate([]string{"ema_0"}); err == nil {
		t.Fatal("zero window should fail validation")
	}
}

func TestLibrarySeriesAndLag(t *testing.T) {
	lib := NewLibrary(NewFrame(testBars(30)))

	cls, err := lib.Series("close")
	if err != nil {
		t.Fatal(err)
	}
	prev, err := lib.Series("prev_close")
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(prev[0]) {
		t.Fatal("lagged series should start NaN")
	}
	if prev[5] != cls[4] {
		t.Fatalf("prev_close[5] = %v, close[4] = %v", prev[5], cls[4])
	}

	// factor columns resolve by raw name
	pe, err := lib.Value("pe", 3)
	if err != nil || pe != 23 {
		t.Fatalf("pe[3] = %v, %v", pe, err)
	}

	// identical pointer on second fetch proves the cache is hit
	again, _ := lib.Series("close")
	if &again[0] != &cls[0] {
		t.Fatal("series not cached")
	}

	if _, err := lib.Value("close", 99); err == nil {
		t.Fatal("out-of-range row should error")
	}
}

func TestVolumeAverages(t *testing.T) {
	lib := NewLibrary(NewFrame(testBars(30)))
	v, err := lib.Value("sma_vol_5", 10)
	if err != nil {
		t.Fatal(err)
	}
	// volumes 1006..1010 average to 1008
	if v != 1008 {
		t.Fatalf("sma_vol_5[10] = %v, want 1008", v)
	}
}
