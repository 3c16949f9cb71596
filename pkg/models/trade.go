package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade statuses
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// Trade sides
const (
	SideLong  = "long"
	SideShort = "short"
	SideBuy   = "buy"
	SideSell  = "sell"
)

// Trade is a detected position on a connected exchange.
// Status transitions once, open to closed.
type Trade struct {
	ID                     int64            `db:"id"`
	UserID                 int64            `db:"user_id"`
	Exchange               string           `db:"exchange"`
	Symbol                 string           `db:"symbol"`
	Side                   string           `db:"side"`
	EntryPrice             decimal.Decimal  `db:"entry_price"`
	ExitPrice              *decimal.Decimal `db:"exit_price"`
	Size                   decimal.Decimal  `db:"size"`
	Leverage               int              `db:"leverage"`
	PnlPercent             *float64         `db:"pnl_percent"`
	PnlAmount              *decimal.Decimal `db:"pnl_amount"`
	Status                 string           `db:"status"`
	InferredReasoning      *string          `db:"inferred_reasoning"`
	UserConfirmedReasoning *bool            `db:"user_confirmed_reasoning"`
	UserActualReasoning    *string          `db:"user_actual_reasoning"`
	EpisodeID              *int64           `db:"episode_id"`
	OpenedAt               time.Time        `db:"opened_at"`
	ClosedAt               *time.Time       `db:"closed_at"`
	CreatedAt              time.Time        `db:"created_at"`
}

// IsDirectional reports whether the side expresses a bullish or
// bearish stance (buy/long vs sell/short)
func (t *Trade) IsDirectional() bool {
	switch t.Side {
	case SideLong, SideShort, SideBuy, SideSell:
		return true
	}
	return false
}

// BaseSymbol returns the base asset of "SOL/USDT" style symbols
func (t *Trade) BaseSymbol() string {
	for i := 0; i < len(t.Symbol); i++ {
		if t.Symbol[i] == '/' {
			return t.Symbol[:i]
		}
	}
	return t.Symbol
}

// ComputePnl sets pnl_percent and pnl_amount from an exit price.
// Long/buy profits when exit > entry, short/sell when exit < entry.
func (t *Trade) ComputePnl(exit decimal.Decimal) {
	if t.EntryPrice.IsZero() {
		return
	}

	diff := exit.Sub(t.EntryPrice)
	pct, _ := diff.Div(t.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
	if t.Side == SideShort || t.Side == SideSell {
		pct = -pct
	}

	amount := diff.Mul(t.Size)

	t.ExitPrice = &exit
	t.PnlPercent = &pct
	t.PnlAmount = &amount
}
