package portfolio

import (
	"testing"

	"github.com/buuzzy/AITrading/services/market"
)

func TestRatioSlippageClamps(t *testing.T) {
	m := NewRatioSlippage(0.001)
	bar := market.PriceBar{
		Open: d("10"), High: d("10.2"), Low: d("9.9"), Close: d("10.1"),
	}
	if !m.BuyFill(bar).Equal(d("10.1101")) {
		t.Fatalf("buy fill = %s", m.BuyFill(bar))
	}
	if !m.SellFill(bar).Equal(d("10.0899")) {
		t.Fatalf("sell fill = %s", m.SellFill(bar))
	}

	// close at the bar high: fill cannot exceed the high
	pinned := market.PriceBar{
		Open: d("10"), High: d("10.1"), Low: d("9.9"), Close: d("10.1"),
	}
	if !m.BuyFill(pinned).Equal(d("10.1")) {
		t.Fatalf("buy fill above high: %s", m.BuyFill(pinned))
	}
	floor := market.PriceBar{
		Open: d("10"), High: d("10.1"), Low: d("10"), Close: d("10"),
	}
	if !m.SellFill(floor).Equal(d("10")) {
		t.Fatalf("sell fill below low: %s", m.SellFill(floor))
	}
}
