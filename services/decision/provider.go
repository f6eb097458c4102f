// Package decision defines the decision-provider contract: given the day's
// context, return a trade signal. Providers are untrusted; the driver fully
// re-validates every decision through the risk gate before execution.
package decision

import (
	"context"
	"strings"

	"github.com/buuzzy/AITrading/strategies"
)

// Signal is the normalized decision vocabulary.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// NormalizeSignal folds provider synonyms onto the canonical vocabulary.
// Anything unrecognized is hold.
func NormalizeSignal(raw string) Signal {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long", "buy_open", "open_long", "add":
		return SignalBuy
	case "sell", "short", "sell_open", "open_short", "close", "reduce":
		return SignalSell
	case "hold", "wait", "stay", "idle", "nop", "none":
		return SignalHold
	}
	return SignalHold
}

// Decision is a provider's verdict. Quantity is in board lots.
type Decision struct {
	Signal       Signal
	QuantityLots int64
	Confidence   float64
	StopLoss     float64
	ProfitTarget float64
	Leverage     float64
	Invalidation string
	Rationale    string
}

// PositionSnapshot is the open-position view a provider sees.
type PositionSnapshot struct {
	Quantity       int64   `json:"quantity"`
	EntryPrice     float64 `json:"entry_price"`
	CurrentPrice   float64 `json:"current_price"`
	Highest        float64 `json:"highest"`
	HoldingDays    int     `json:"holding_days"`
	PnLPct         float64 `json:"pnl_pct"`
	TPlusOneLocked bool    `json:"t_plus_one_locked"`
}

// AccountSnapshot is the cash/equity view.
type AccountSnapshot struct {
	AvailableCash float64 `json:"available_cash"`
	TotalAsset    float64 `json:"total_asset"`
	InitialCash   float64 `json:"initial_cash"`
}

// TradeMemo is one line of recent-trade memory.
type TradeMemo struct {
	Date     string  `json:"date"`
	Action   string  `json:"action"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// Context is everything a provider may consult for one day.
type Context struct {
	RunID          string
	Symbol         string
	Date           string
	Row            int // row index into the bar frame
	Price          float64
	Indicators     map[string]float64
	Flags          strategies.Flags
	Position       *PositionSnapshot
	Account        AccountSnapshot
	MaxBuyableLots int64
	AllowedActions []string
	RecentTrades   []TradeMemo
	Advisory       string // technical-analysis advisory text, may be empty
}

// Provider produces one decision per trading day.
type Provider interface {
	Decide(ctx context.Context, day *Context) (Decision, error)
}
