package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestLedger(cash string) *Ledger {
	return NewLedger("000001", d(cash), DefaultFeeSchedule(), 100, nil)
}

func TestBuyLotAndCashChecks(t *testing.T) {
	l := newTestLedger("100000")

	if _, err := l.Buy(150, d("10"), day("2024-01-02")); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("odd-lot buy: %v", err)
	}
	if _, err := l.Buy(0, d("10"), day("2024-01-02")); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero buy: %v", err)
	}
	// 10000 shares at 10 cost 100030 with commission, over the balance
	if _, err := l.Buy(10000, d("10"), day("2024-01-02")); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("overdraw buy: %v", err)
	}
	if !l.AvailableCash().Equal(d("100000")) {
		t.Fatalf("failed buys must not move cash, got %s", l.AvailableCash())
	}

	res, err := l.Buy(100, d("10"), day("2024-01-02"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.Fees.Commission.Equal(d("0.3")) {
		t.Fatalf("buy commission = %s, want 0.3", res.Fees.Commission)
	}
	if !l.AvailableCash().Equal(d("98999.7")) {
		t.Fatalf("cash after buy = %s, want 98999.7", l.AvailableCash())
	}
}

func TestWeightedAverageReaveraging(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Buy(100, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Buy(100, d("12"), day("2024-01-03")); err != nil {
		t.Fatal(err)
	}
	pos, ok := l.Position()
	if !ok {
		t.Fatal("position missing")
	}
	if pos.Quantity != 200 {
		t.Fatalf("quantity = %d, want 200", pos.Quantity)
	}
	if !pos.EntryPrice.Equal(d("11")) {
		t.Fatalf("entry = %s, want 11", pos.EntryPrice)
	}
	// add-on resets the T+1 clock
	if pos.BuyDate != day("2024-01-03") {
		t.Fatalf("buy date = %s", pos.BuyDate)
	}
}

func TestTPlusOne(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Buy(100, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Sell(100, d("10.5"), day("2024-01-02")); !errors.Is(err, ErrTPlusOne) {
		t.Fatalf("same-day sell: %v", err)
	}
	if _, err := l.Sell(100, d("10.5"), day("2024-01-03")); err != nil {
		t.Fatalf("next-day sell: %v", err)
	}
}

func TestRealizedPnLRoundTrip(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Buy(100, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	res, err := l.Sell(100, d("11"), day("2024-01-05"))
	if err != nil {
		t.Fatal(err)
	}
	// sell notional 1100: commission 0.33, stamp duty 0.55, no transfer
	// fee on a Shenzhen code
	if !res.Fees.Commission.Equal(d("0.33")) || !res.Fees.StampDuty.Equal(d("0.55")) {
		t.Fatalf("sell fees = %+v", res.Fees)
	}
	if !res.Fees.TransferFee.IsZero() {
		t.Fatalf("transfer fee on SZ sell = %s", res.Fees.TransferFee)
	}
	if !res.RealizedPnL.Equal(d("99.12")) {
		t.Fatalf("realized = %s, want 99.12", res.RealizedPnL)
	}
	if _, ok := l.Position(); ok {
		t.Fatal("position should be closed")
	}
	// 100000 - 1000.30 + (1100 - 0.88)
	if !l.AvailableCash().Equal(d("100098.82")) {
		t.Fatalf("cash = %s, want 100098.82", l.AvailableCash())
	}
}

func TestShanghaiTransferFee(t *testing.T) {
	l := NewLedger("600519", d("1000000"), DefaultFeeSchedule(), 100, nil)
	if _, err := l.Buy(100, d("1000"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	res, err := l.Sell(100, d("1000"), day("2024-01-03"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fees.TransferFee.Equal(d("1")) {
		t.Fatalf("transfer fee = %s, want 1", res.Fees.TransferFee)
	}
}

func TestPartialSellClampAndLots(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Buy(300, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	// odd-lot partial is refused
	if _, err := l.Sell(150, d("10"), day("2024-01-03")); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("odd-lot partial sell: %v", err)
	}
	// over-ask clamps to held
	res, err := l.Sell(500, d("10"), day("2024-01-03"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Quantity != 300 {
		t.Fatalf("clamped quantity = %d, want 300", res.Quantity)
	}
}

func TestSellWithNoPosition(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Sell(100, d("10"), day("2024-01-03")); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("sell flat: %v", err)
	}
}

func TestMarkToMarketAndHighWater(t *testing.T) {
	l := newTestLedger("100000")
	if _, err := l.Buy(100, d("10"), day("2024-01-02")); err != nil {
		t.Fatal(err)
	}
	l.MarkToMarket(d("12"))
	l.MarkToMarket(d("11"))
	pos, _ := l.Position()
	if !pos.Highest.Equal(d("12")) {
		t.Fatalf("high-water = %s, want 12", pos.Highest)
	}
	if !pos.CurrentPrice.Equal(d("11")) {
		t.Fatalf("current = %s, want 11", pos.CurrentPrice)
	}
	if !pos.UnrealizedPnL().Equal(d("100")) {
		t.Fatalf("unrealized = %s, want 100", pos.UnrealizedPnL())
	}
	if !pos.PnLPct().Equal(d("10")) {
		t.Fatalf("pnl pct = %s, want 10", pos.PnLPct())
	}
	// total asset is cash plus marked position
	want := d("98999.7").Add(d("1100"))
	if !l.TotalAsset().Equal(want) {
		t.Fatalf("total asset = %s, want %s", l.TotalAsset(), want)
	}
}

func TestDepositWithdraw(t *testing.T) {
	l := newTestLedger("1000")
	l.Deposit(d("500"))
	if !l.AvailableCash().Equal(d("1500")) {
		t.Fatalf("cash = %s", l.AvailableCash())
	}
	if err := l.Withdraw(d("2000")); !errors.Is(err, ErrNegativeCash) {
		t.Fatalf("overdraw withdraw: %v", err)
	}
	if err := l.Withdraw(d("1500")); err != nil {
		t.Fatal(err)
	}
	if !l.AvailableCash().IsZero() {
		t.Fatalf("cash = %s, want 0", l.AvailableCash())
	}
}
