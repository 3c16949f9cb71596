package models

import "time"

// Episode kinds
const (
	EpisodeTrade    = "trade"
	EpisodeChat     = "chat"
	EpisodeFeedback = "feedback"
	EpisodeSignal   = "signal"
	EpisodePatrol   = "patrol"
)

// Episode is an embedded memory record. The row is authoritative;
// vector_id is filled in only after a successful best-effort upsert.
type Episode struct {
	ID                    int64     `db:"id"`
	UserID                int64     `db:"user_id"`
	Kind                  string    `db:"kind"`
	MarketContext         JSONMap   `db:"market_context"`
	UserAction            string    `db:"user_action"`
	TradeData             JSONMap   `db:"trade_data"`
	Reasoning             *string   `db:"reasoning"`
	TradeResult           *string   `db:"trade_result"`
	Feedback              *string   `db:"feedback"`
	ExpressionCalibration JSONMap   `db:"expression_calibration"`
	StyleTags             JSONMap   `db:"style_tags"`
	EmbeddingText         string    `db:"embedding_text"`
	VectorID              *string   `db:"vector_id"`
	CreatedAt             time.Time `db:"created_at"`
}

// Patrol log kinds
const (
	PatrolScheduled       = "scheduled"
	PatrolDeferredRequest = "deferred_request"
)

// PatrolLog records one patrol sweep for one user
type PatrolLog struct {
	ID                 int64     `db:"id"`
	UserID             int64     `db:"user_id"`
	Kind               string    `db:"kind"`
	Findings           JSONMap   `db:"findings"`
	ActionsTaken       JSONMap   `db:"actions_taken"`
	TemperatureChanges JSONMap   `db:"temperature_changes"`
	CreatedAt          time.Time `db:"created_at"`
}

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is an append-only record of what the engine emitted
// (or received) per user
type ChatMessage struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	Role              string    `db:"role"`
	Content           string    `db:"content"`
	MessageType       string    `db:"message_type"`
	Intent            *string   `db:"intent"`
	Metadata          JSONMap   `db:"metadata"`
	ExternalMessageID *string   `db:"external_message_id"`
	CreatedAt         time.Time `db:"created_at"`
}
