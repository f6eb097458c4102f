package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/market"
)

// Ledger operation failures. The driver's risk gate prevents most of these;
// the ledger refuses them anyway as the last line of defense, and callers
// normalize refusals to hold/zero-quantity results rather than aborting.
var (
	ErrInvalidQuantity  = errors.New("quantity must be a positive multiple of the lot size")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no open position")
	ErrTPlusOne         = errors.New("same-day sell forbidden by T+1 settlement")
	ErrNegativeCash     = errors.New("operation would drive cash negative")
)

// Position is the single open holding: integer shares in whole lots, a
// weighted-average entry price, and the high-water mark since entry.
type Position struct {
	Symbol       string
	Quantity     int64
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	BuyDate      time.Time
	Highest      decimal.Decimal
}

// UnrealizedPnL is (current - entry) * quantity.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// PnLPct is the unrealized return versus entry, in percent.
func (p Position) PnLPct() decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// TradeResult reports one executed ledger mutation.
type TradeResult struct {
	Quantity        int64
	Price           decimal.Decimal
	Fees            Fees
	RealizedPnL     decimal.Decimal
	CashAfter       decimal.Decimal
	TotalAssetAfter decimal.Decimal
}

// Ledger is the in-memory account: available cash plus zero-or-one position.
// total_asset is always recomputed from parts, never drifted incrementally.
type Ledger struct {
	symbol  string
	lotSize int64
	fees    FeeSchedule
	cash    decimal.Decimal
	pos     *Position
	logger  *zap.Logger
}

// NewLedger opens an account for one instrument.
func NewLedger(symbol string, initialCash decimal.Decimal, fees FeeSchedule, lotSize int64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lotSize <= 0 {
		lotSize = 100
	}
	return &Ledger{
		symbol:  market.NormalizeSymbol(symbol),
		lotSize: lotSize,
		fees:    fees,
		cash:    initialCash,
		logger:  logger,
	}
}

// Symbol returns the instrument this ledger trades.
func (l *Ledger) Symbol() string { return l.symbol }

// LotSize returns the board-lot size.
func (l *Ledger) LotSize() int64 { return l.lotSize }

// AvailableCash returns the free cash balance.
func (l *Ledger) AvailableCash() decimal.Decimal { return l.cash }

// Position returns a copy of the open position, if any.
func (l *Ledger) Position() (Position, bool) {
	if l.pos == nil {
		return Position{}, false
	}
	return *l.pos, true
}

// TotalAsset is cash plus the marked value of the open position.
func (l *Ledger) TotalAsset() decimal.Decimal {
	total := l.cash
	if l.pos != nil {
		total = total.Add(l.pos.CurrentPrice.Mul(decimal.NewFromInt(l.pos.Quantity)))
	}
	return total
}

// MarkToMarket pushes the day's price into the position and advances the
// high-water mark.
func (l *Ledger) MarkToMarket(price decimal.Decimal) {
	if l.pos == nil {
		return
	}
	l.pos.CurrentPrice = price
	if price.GreaterThan(l.pos.Highest) {
		l.pos.Highest = price
	}
}

// Deposit credits an external cash flow.
func (l *Ledger) Deposit(amount decimal.Decimal) {
	l.cash = l.cash.Add(amount)
}

// Withdraw debits an external cash flow; it refuses to overdraw.
func (l *Ledger) Withdraw(amount decimal.Decimal) error {
	if amount.GreaterThan(l.cash) {
		return ErrNegativeCash
	}
	l.cash = l.cash.Sub(amount)
	return nil
}

// Buy debits cash for quantity shares at price and opens or re-averages the
// position. Quantity must be a positive whole multiple of the lot size and
// the full cost (price plus commission) must fit in available cash.
func (l *Ledger) Buy(quantity int64, price decimal.Decimal, day time.Time) (TradeResult, error) {
	if quantity <= 0 || quantity%l.lotSize != 0 {
		return TradeResult{}, fmt.Errorf("buy %d shares: %w", quantity, ErrInvalidQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return TradeResult{}, fmt.Errorf("buy at %s: price must be positive", price)
	}
	notional := price.Mul(decimal.NewFromInt(quantity))
	fees := l.fees.BuyFees(notional)
	cost := notional.Add(fees.Total())
	if cost.GreaterThan(l.cash) {
		return TradeResult{}, fmt.Errorf("buy cost %s exceeds cash %s: %w", cost, l.cash, ErrInsufficientCash)
	}

	l.cash = l.cash.Sub(cost)
	if l.pos == nil {
		l.pos = &Position{
			Symbol:       l.symbol,
			Quantity:     quantity,
			EntryPrice:   price,
			CurrentPrice: price,
			BuyDate:      market.Day(day),
			Highest:      price,
		}
	} else {
		oldQty := decimal.NewFromInt(l.pos.Quantity)
		addQty := decimal.NewFromInt(quantity)
		newQty := oldQty.Add(addQty)
		l.pos.EntryPrice = oldQty.Mul(l.pos.EntryPrice).Add(addQty.Mul(price)).Div(newQty)
		l.pos.Quantity += quantity
		l.pos.CurrentPrice = price
		l.pos.BuyDate = market.Day(day)
		if price.GreaterThan(l.pos.Highest) {
			l.pos.Highest = price
		}
	}

	l.logger.Debug("ledger buy",
		zap.String("symbol", l.symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
		zap.String("cash_after", l.cash.String()),
	)
	return TradeResult{
		Quantity:        quantity,
		Price:           price,
		Fees:            fees,
		CashAfter:       l.cash,
		TotalAssetAfter: l.TotalAsset(),
	}, nil
}

// Sell disposes quantity shares at price. The quantity is clamped to the
// held amount and must be a positive multiple of the lot size unless it
// clears the whole position. Same-day sells are rejected (T+1). Realized
// P&L uses the pre-trade weighted-average entry price.
func (l *Ledger) Sell(quantity int64, price decimal.Decimal, day time.Time) (TradeResult, error) {
	if l.pos == nil {
		return TradeResult{}, ErrNoPosition
	}
	if !market.Day(day).After(l.pos.BuyDate) {
		return TradeResult{}, fmt.Errorf("bought %s, selling %s: %w",
			l.pos.BuyDate.Format(market.DateLayout), market.Day(day).Format(market.DateLayout), ErrTPlusOne)
	}
	if quantity <= 0 {
		return TradeResult{}, fmt.Errorf("sell %d shares: %w", quantity, ErrInvalidQuantity)
	}
	if quantity > l.pos.Quantity {
		quantity = l.pos.Quantity
	}
	if quantity%l.lotSize != 0 && quantity != l.pos.Quantity {
		return TradeResult{}, fmt.Errorf("sell %d shares: %w", quantity, ErrInvalidQuantity)
	}

	entry := l.pos.EntryPrice // pre-trade basis
	notional := price.Mul(decimal.NewFromInt(quantity))
	fees := l.fees.SellFees(l.symbol, notional)
	proceeds := notional.Sub(fees.Total())
	realized := price.Sub(entry).Mul(decimal.NewFromInt(quantity)).Sub(fees.Total())

	l.cash = l.cash.Add(proceeds)
	l.pos.Quantity -= quantity
	l.pos.CurrentPrice = price
	if l.pos.Quantity == 0 {
		l.pos = nil
	}

	l.logger.Debug("ledger sell",
		zap.String("symbol", l.symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
		zap.String("realized", realized.String()),
		zap.String("cash_after", l.cash.String()),
	)
	return TradeResult{
		Quantity:        quantity,
		Price:           price,
		Fees:            fees,
		RealizedPnL:     realized,
		CashAfter:       l.cash,
		TotalAssetAfter: l.TotalAsset(),
	}, nil
}

// Close sells the entire position.
func (l *Ledger) Close(price decimal.Decimal, day time.Time) (TradeResult, error) {
	if l.pos == nil {
		return TradeResult{}, ErrNoPosition
	}
	return l.Sell(l.pos.Quantity, price, day)
}

// Restore force-sets the ledger from replayed state. Used only by the
// checkpoint replay path.
func (l *Ledger) Restore(cash decimal.Decimal, pos *Position) {
	l.cash = cash
	if pos == nil {
		l.pos = nil
		return
	}
	cp := *pos
	l.pos = &cp
}
