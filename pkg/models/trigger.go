package models

import "time"

// Trigger kinds
const (
	TriggerAlert        = "alert"
	TriggerSignal       = "signal"
	TriggerLLMEvaluated = "llm_evaluated"
)

// Trigger sources
const (
	TriggerSourceUser    = "user_request"
	TriggerSourceLLMAuto = "llm_auto"
	TriggerSourcePatrol  = "patrol"
)

// Leaf condition types
const (
	CondPriceAbove    = "price_above"
	CondPriceBelow    = "price_below"
	CondFundingAbove  = "funding_above"
	CondFundingBelow  = "funding_below"
	CondVolumeSpike   = "volume_spike"
	CondOIChange      = "oi_change"
	CondKimchiPremium = "kimchi_premium"
	CondNewsKeyword   = "news_keyword"
)

// UserTrigger is a user-defined or system-synthesised condition.
// Alerts carry a leaf condition; signals carry a leaf condition or a
// composite expression over base_streams_needed; llm_evaluated
// triggers carry an eval prompt and are handled by patrol only.
type UserTrigger struct {
	ID                int64      `db:"id"`
	UserID            int64      `db:"user_id"`
	Kind              string     `db:"kind"`
	Condition         JSONMap    `db:"condition"`
	CompositeLogic    *string    `db:"composite_logic"`
	BaseStreamsNeeded JSONList   `db:"base_streams_needed"`
	EvalPrompt        *string    `db:"eval_prompt"`
	DataNeeded        JSONList   `db:"data_needed"`
	Description       string     `db:"description"`
	Source            string     `db:"source"`
	IsActive          bool       `db:"is_active"`
	TriggeredAt       *time.Time `db:"triggered_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

// AutoRetirable reports whether cleanup may retire this trigger
func (t *UserTrigger) AutoRetirable() bool {
	return t.Source == TriggerSourceLLMAuto || t.Source == TriggerSourcePatrol
}
