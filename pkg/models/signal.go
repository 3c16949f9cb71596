package models

import "time"

// Signal kinds
const (
	SignalTrade    = "trade_signal"
	SignalBriefing = "briefing"
)

// Signal directions
const (
	DirectionLong  = "long"
	DirectionShort = "short"
	DirectionExit  = "exit"
	DirectionWatch = "watch"
)

// Confidence axis weights: style 0.3, history 0.3, market 0.4
const (
	ConfidenceStyleWeight   = 0.3
	ConfidenceHistoryWeight = 0.3
	ConfidenceMarketWeight  = 0.4
)

// Signal is a structured advisory produced by the judge
type Signal struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	Kind              string    `db:"kind"`
	Content           string    `db:"content"`
	Reasoning         string    `db:"reasoning"`
	CounterArgument   *string   `db:"counter_argument"`
	Confidence        float64   `db:"confidence"`
	ConfidenceStyle   *float64  `db:"confidence_style"`
	ConfidenceHistory *float64  `db:"confidence_history"`
	ConfidenceMarket  *float64  `db:"confidence_market"`
	Symbol            *string   `db:"symbol"`
	Direction         *string   `db:"direction"`
	StopLoss          *string   `db:"stop_loss"`
	UserFeedback      *string   `db:"user_feedback"`
	UserAgreed        *bool     `db:"user_agreed"`
	TradeFollowed     *bool     `db:"trade_followed"`
	TradeResultPnl    *float64  `db:"trade_result_pnl"`
	EpisodeID         *int64    `db:"episode_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// CombineConfidence aggregates the three axes with fixed weights
func CombineConfidence(style, history, market float64) float64 {
	return ConfidenceStyleWeight*style +
		ConfidenceHistoryWeight*history +
		ConfidenceMarketWeight*market
}
