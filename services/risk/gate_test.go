package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/config"
	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/portfolio"
	"github.com/buuzzy/AITrading/strategies"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(s string) time.Time {
	t, err := market.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func flatBar(date, price string) market.PriceBar {
	p := d(price)
	return market.PriceBar{Date: day(date), Open: p, High: p, Low: p, Close: p,
		Volume: decimal.NewFromInt(1000)}
}

func testGate(cash string) (*Gate, *portfolio.Ledger, *State) {
	cfg := config.Default()
	cfg.Symbol = "000001"
	cfg.StartDate = "2024-01-02"
	cfg.EndDate = "2024-01-31"
	bars := []market.PriceBar{
		flatBar("2024-01-02", "10"), flatBar("2024-01-03", "10"),
		flatBar("2024-01-04", "10"), flatBar("2024-01-05", "10"),
		flatBar("2024-01-08", "10"), flatBar("2024-01-09", "10"),
		flatBar("2024-01-10", "10"), flatBar("2024-01-11", "10"),
		flatBar("2024-01-12", "10"), flatBar("2024-01-15", "10"),
	}
	cal := market.NewCalendar(bars)
	fees := portfolio.DefaultFeeSchedule()
	led := portfolio.NewLedger(cfg.Symbol, d(cash), fees, cfg.LotSize, nil)
	return NewGate(cfg, fees, cal, nil), led, &State{}
}

func buyReq(date string, lots int64) Request {
	return Request{
		Day:       day(date),
		Bar:       flatBar(date, "10"),
		PrevClose: d("10"),
		Decision:  decision.Decision{Signal: decision.SignalBuy, QuantityLots: lots},
	}
}

func TestGateAffordabilityClamp(t *testing.T) {
	g, led, st := testGate("5000")
	out := g.Apply(buyReq("2024-01-04", 100), led, st)
	if out.Signal != decision.SignalBuy {
		t.Fatalf("signal = %s", out.Signal)
	}
	// one lot costs ~1001.30 with slippage and commission buffers
	if out.Quantity != 400 {
		t.Fatalf("quantity = %d, want 400", out.Quantity)
	}
}

func TestGateLimitMoveRejectsBuy(t *testing.T) {
	g, led, st := testGate("100000")
	req := buyReq("2024-01-04", 1)
	req.Bar = flatBar("2024-01-04", "11")
	req.PrevClose = d("10") // +10% on the main board
	out := g.Apply(req, led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("limit-up buy passed: %+v", out)
	}
}

func TestGateCooldown(t *testing.T) {
	g, led, st := testGate("100000")
	st.CooldownUntil = day("2024-01-10")

	out := g.Apply(buyReq("2024-01-08", 1), led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("cooldown buy passed: %+v", out)
	}

	// a met release condition lifts the cooldown early
	req := buyReq("2024-01-08", 1)
	req.Flags = strategies.Flags{CooldownReleaseMet: true}
	out = g.Apply(req, led, st)
	if out.Signal != decision.SignalBuy || out.Quantity != 100 {
		t.Fatalf("released buy blocked: %+v", out)
	}

	// cooldown expires on its end day
	out = g.Apply(buyReq("2024-01-10", 1), led, st)
	if out.Signal != decision.SignalBuy {
		t.Fatalf("post-cooldown buy blocked: %+v", out)
	}
}

func TestGateBuyFrequencyCap(t *testing.T) {
	g, led, st := testGate("100000")
	g.RecordBuy(st, day("2024-01-04"), false)
	g.RecordBuy(st, day("2024-01-08"), false)

	out := g.Apply(buyReq("2024-01-09", 1), led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("third buy inside the window passed: %+v", out)
	}

	// the window slides: five open days later the first buy ages out
	out = g.Apply(buyReq("2024-01-12", 1), led, st)
	if out.Signal != decision.SignalBuy {
		t.Fatalf("buy after window slid blocked: %+v", out)
	}
}

func TestGateAddOnEMARatio(t *testing.T) {
	g, led, st := testGate("100000")
	if _, err := led.Buy(100, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}

	req := buyReq("2024-01-04", 1)
	req.EMA20 = d("9.5") // 10/9.5 = 1.0526 >= 1.03
	out := g.Apply(req, led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("extended add-on passed: %+v", out)
	}

	// hot states widen the band to 1.10
	req.Flags = strategies.Flags{SuperTrend: true}
	out = g.Apply(req, led, st)
	if out.Signal != decision.SignalBuy {
		t.Fatalf("hot add-on blocked: %+v", out)
	}
}

func TestGateDowntrendCap(t *testing.T) {
	g, led, st := testGate("100000")
	req := buyReq("2024-01-04", 50)
	req.Flags = strategies.Flags{InDowntrendCap: true}
	out := g.Apply(req, led, st)
	// 99 affordable lots, 15% of capacity is 14 lots
	if out.Quantity != 1400 {
		t.Fatalf("downtrend quantity = %d, want 1400", out.Quantity)
	}
}

func TestGateSellChecks(t *testing.T) {
	g, led, st := testGate("100000")

	sell := Request{
		Day: day("2024-01-05"), Bar: flatBar("2024-01-05", "10"), PrevClose: d("10"),
		Decision: decision.Decision{Signal: decision.SignalSell, QuantityLots: 1},
	}
	out := g.Apply(sell, led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("flat sell passed: %+v", out)
	}

	if _, err := led.Buy(300, d("10"), day("2024-01-04")); err != nil {
		t.Fatal(err)
	}
	g.RecordBuy(st, day("2024-01-04"), false)

	// T+1: unlock is the next open day
	sameDay := sell
	sameDay.Day = day("2024-01-04")
	out = g.Apply(sameDay, led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("same-day sell passed: %+v", out)
	}
	out = g.Apply(sell, led, st)
	if out.Signal != decision.SignalSell || out.Quantity != 100 {
		t.Fatalf("next-day sell: %+v", out)
	}

	// over-ask clamps to held
	big := sell
	big.Decision.QuantityLots = 10
	out = g.Apply(big, led, st)
	if out.Quantity != 300 {
		t.Fatalf("clamped sell = %d, want 300", out.Quantity)
	}
}

func TestGateSealedLimitDownBlocksSell(t *testing.T) {
	g, led, st := testGate("100000")
	if _, err := led.Buy(100, d("10"), day("2024-01-04")); err != nil {
		t.Fatal(err)
	}
	g.RecordBuy(st, day("2024-01-04"), false)

	next := flatBar("2024-01-08", "9.02") // pinned 9.8% down from 10
	req := Request{
		Day: day("2024-01-05"), Bar: flatBar("2024-01-05", "10"), PrevClose: d("10"),
		NextBar:  &next,
		Decision: decision.Decision{Signal: decision.SignalSell, QuantityLots: 1},
	}
	out := g.Apply(req, led, st)
	if out.Signal != decision.SignalHold {
		t.Fatalf("sell into sealed limit-down passed: %+v", out)
	}
}

func TestGateTrendInvalidationForcesExit(t *testing.T) {
	g, led, st := testGate("100000")
	if _, err := led.Buy(300, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}

	req := Request{
		Day: day("2024-01-04"), Bar: flatBar("2024-01-04", "10"), PrevClose: d("10"),
		Decision: decision.Decision{Signal: decision.SignalHold},
		Flags:    strategies.Flags{TrendInvalidation: true},
	}
	out := g.Apply(req, led, st)
	if out.Signal != decision.SignalSell {
		t.Fatalf("invalidation did not force a sell: %+v", out)
	}
	// at least half the position, rounded up to whole lots
	if out.Quantity != 200 {
		t.Fatalf("forced exit quantity = %d, want 200", out.Quantity)
	}
}

func TestRecordBuyAndSellState(t *testing.T) {
	g, _, _ := testGate("100000")
	st := &State{}

	g.RecordBuy(st, day("2024-01-04"), false)
	if !st.TPlusOneUnlock.Equal(day("2024-01-05")) {
		t.Fatalf("unlock = %s", st.TPlusOneUnlock)
	}
	if !st.CooldownUntil.IsZero() {
		t.Fatal("plain buy must not start a cooldown")
	}

	g.RecordBuy(st, day("2024-01-05"), true)
	if st.CooldownUntil.IsZero() {
		t.Fatal("exploratory buy must start a cooldown")
	}

	g.RecordSell(st, day("2024-01-09"), true)
	if !st.TPlusOneUnlock.IsZero() {
		t.Fatal("closing the position clears the T+1 lock")
	}
	// three open days after 01-09 is 01-12
	if !st.CooldownUntil.Equal(day("2024-01-12")) {
		t.Fatalf("cooldown until = %s", st.CooldownUntil)
	}
}
