package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/pkg/logger"
)

// LLMUsageRecord is one analytics row per model call
type LLMUsageRecord struct {
	Timestamp     time.Time
	UserID        int64
	Component     string
	Model         string
	InputTokens   int
	OutputTokens  int
	CacheRead     int
	CacheCreation int
	LatencyMs     int64
}

// SignalOutcomeRecord is one analytics row per graded signal
type SignalOutcomeRecord struct {
	Timestamp  time.Time
	UserID     int64
	SignalID   int64
	Direction  string
	Confidence float64
	Source     string
	Feedback   string
	Followed   bool
}

// Repository handles analytics writes. The engine runs fine without
// it; callers must treat a nil repository as disabled.
type Repository struct {
	db *sqlx.DB
}

// Connect opens the analytics database
func Connect(cfg *config.ClickHouseConfig) (*Repository, error) {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s/%s",
		cfg.User, cfg.Password, cfg.Addr, cfg.Database,
	)

	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("clickhouse connected",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)

	return &Repository{db: db}, nil
}

// SaveLLMUsage writes usage rows in one transaction
func (r *Repository) SaveLLMUsage(ctx context.Context, records []LLMUsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO llm_usage
		(timestamp, user_id, component, model, input_tokens, output_tokens,
		 cache_read_tokens, cache_creation_tokens, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err = stmt.ExecContext(ctx,
			rec.Timestamp,
			rec.UserID,
			rec.Component,
			rec.Model,
			rec.InputTokens,
			rec.OutputTokens,
			rec.CacheRead,
			rec.CacheCreation,
			rec.LatencyMs,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert usage row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved llm usage to clickhouse",
		zap.Int("count", len(records)),
	)

	return nil
}

// SaveSignalOutcomes writes outcome rows in one transaction
func (r *Repository) SaveSignalOutcomes(ctx context.Context, records []SignalOutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO signal_outcomes
		(timestamp, user_id, signal_id, direction, confidence, source, feedback, followed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err = stmt.ExecContext(ctx,
			rec.Timestamp,
			rec.UserID,
			rec.SignalID,
			rec.Direction,
			rec.Confidence,
			rec.Source,
			rec.Feedback,
			rec.Followed,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert outcome row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the connection
func (r *Repository) Close() error {
	return r.db.Close()
}
