package models

// LLMUsage is token accounting for one model call
type LLMUsage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	CacheRead     int `json:"cache_read"`
	CacheCreation int `json:"cache_creation"`
}

// LLMResponse is the normalized result of one model call
type LLMResponse struct {
	Text       string
	Usage      LLMUsage
	Model      string
	StopReason string
}

// LLMMessage is one turn of a conversation
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Order is a normalized exchange order used by trade detection
type Order struct {
	Symbol      string
	Side        string
	Amount      float64
	Cost        float64
	TimestampMs int64
	Status      string
	Type        string
	Raw         JSONMap
}

// Position is an open derivatives position (or a synthetic spot
// long derived from balances on spot-only venues)
type Position struct {
	Symbol   string
	Side     string
	Size     float64
	Entry    float64
	Leverage int
}
