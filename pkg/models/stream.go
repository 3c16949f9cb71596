package models

import (
	"fmt"
	"time"
)

// Stream temperatures
const (
	TempHot  = "hot"
	TempWarm = "warm"
	TempCold = "cold"
)

// Stream types
const (
	StreamPrice     = "price"
	StreamFunding   = "funding"
	StreamOI        = "oi"
	StreamNews      = "news"
	StreamIndicator = "indicator"
	StreamSpread    = "spread"
)

// BaseStream is a per-user subscription to a market quantity.
// Streams are never hard-deleted; cold streams just stop polling.
type BaseStream struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	StreamType      string    `db:"stream_type"`
	Symbol          *string   `db:"symbol"`
	Config          JSONMap   `db:"config"`
	Temperature     string    `db:"temperature"`
	LastMentionedAt time.Time `db:"last_mentioned_at"`
	LastValue       JSONMap   `db:"last_value"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// SymbolOrAll returns the symbol part of cache and snapshot keys
func (s *BaseStream) SymbolOrAll() string {
	if s.Symbol == nil || *s.Symbol == "" {
		return "all"
	}
	return *s.Symbol
}

// CacheKey returns the hot-value cache key for this stream
func (s *BaseStream) CacheKey() string {
	return fmt.Sprintf("base:%d:%s:%s", s.UserID, s.StreamType, s.SymbolOrAll())
}

// SnapshotKey returns the hot-snapshot map key for this stream
func (s *BaseStream) SnapshotKey() string {
	return fmt.Sprintf("%s/%s", s.StreamType, s.SymbolOrAll())
}
