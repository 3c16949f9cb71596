package intel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/internal/adapters/vector"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// StreamLister supplies the live streams captured into market context
type StreamLister interface {
	UserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error)
}

// OpenTradeLister supplies open positions for market context
type OpenTradeLister interface {
	ListOpen(ctx context.Context, userID int64) ([]models.Trade, error)
}

// UserLookup resolves the external messenger ID used as the vector
// namespace
type UserLookup interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
}

// EpisodeRepository persists episodic memory. The Postgres row is
// authoritative; indexing into the vector store is best-effort and a
// failed upsert never fails the write.
type EpisodeRepository struct {
	db      *database.DB
	vectors vector.Store
	users   UserLookup
	streams StreamLister
	trades  OpenTradeLister
}

// NewEpisodeRepository creates the episode repository. vectors may be
// nil when no index is configured.
func NewEpisodeRepository(db *database.DB, vectors vector.Store, users UserLookup, streams StreamLister, trades OpenTradeLister) *EpisodeRepository {
	return &EpisodeRepository{db: db, vectors: vectors, users: users, streams: streams, trades: trades}
}

// Create inserts an episode, snapshots market context when the caller
// gave none, and indexes the embedding text
func (r *EpisodeRepository) Create(ctx context.Context, episode *models.Episode) (int64, error) {
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}
	if episode.MarketContext == nil {
		episode.MarketContext = r.snapshotMarket(ctx, episode.UserID)
	}

	err := r.db.DB().GetContext(ctx, &episode.ID, `
		INSERT INTO episodes (user_id, kind, market_context, user_action, trade_data,
			reasoning, trade_result, feedback, expression_calibration, style_tags,
			embedding_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, episode.UserID, episode.Kind, episode.MarketContext, episode.UserAction, episode.TradeData,
		episode.Reasoning, episode.TradeResult, episode.Feedback, episode.ExpressionCalibration,
		episode.StyleTags, episode.EmbeddingText, episode.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create episode: %w", err)
	}

	r.index(ctx, episode)
	return episode.ID, nil
}

// index upserts the episode into the vector store and stamps the row
// with its vector ID. Failures leave the row unindexed.
func (r *EpisodeRepository) index(ctx context.Context, episode *models.Episode) {
	if r.vectors == nil || episode.EmbeddingText == "" {
		return
	}

	user, err := r.users.GetByID(ctx, episode.UserID)
	if err != nil || user == nil {
		logger.Warn("episode index skipped, user lookup failed",
			zap.Int64("episode_id", episode.ID), zap.Error(err))
		return
	}

	metadata := models.JSONMap{
		"kind":        episode.Kind,
		"user_action": episode.UserAction,
		"created_at":  episode.CreatedAt.Format(time.RFC3339),
	}
	if err := r.vectors.UpsertEpisode(ctx, user.TelegramID, episode.ID, episode.EmbeddingText, metadata); err != nil {
		logger.Warn("episode index failed",
			zap.Int64("episode_id", episode.ID), zap.Error(err))
		return
	}

	vectorID := vector.VectorID(episode.ID)
	if _, err := r.db.DB().ExecContext(ctx, `
		UPDATE episodes SET vector_id = $2 WHERE id = $1
	`, episode.ID, vectorID); err != nil {
		logger.Warn("failed to stamp episode vector id",
			zap.Int64("episode_id", episode.ID), zap.Error(err))
		return
	}
	episode.VectorID = &vectorID
}

// snapshotMarket captures live streams and open positions at episode
// time. Best-effort; an empty snapshot is fine.
func (r *EpisodeRepository) snapshotMarket(ctx context.Context, userID int64) models.JSONMap {
	snapshot := models.JSONMap{}

	if r.streams != nil {
		streams, err := r.streams.UserStreams(ctx, userID, models.TempHot, models.TempWarm)
		if err != nil {
			logger.Warn("market snapshot streams failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			items := make([]interface{}, 0, len(streams))
			for i := range streams {
				s := &streams[i]
				items = append(items, map[string]interface{}{
					"type":        s.StreamType,
					"symbol":      s.SymbolOrAll(),
					"temperature": s.Temperature,
					"value":       s.LastValue,
				})
			}
			snapshot["streams"] = items
		}
	}

	if r.trades != nil {
		open, err := r.trades.ListOpen(ctx, userID)
		if err != nil {
			logger.Warn("market snapshot positions failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			items := make([]interface{}, 0, len(open))
			for i := range open {
				t := &open[i]
				items = append(items, map[string]interface{}{
					"symbol":      t.Symbol,
					"side":        t.Side,
					"entry_price": t.EntryPrice.String(),
					"leverage":    t.Leverage,
					"exchange":    t.Exchange,
				})
			}
			snapshot["positions"] = items
		}
	}

	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}

// ListRecent returns the newest episodes, created_at desc
func (r *EpisodeRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.Episode, error) {
	var episodes []models.Episode
	err := r.db.DB().SelectContext(ctx, &episodes, `
		SELECT * FROM episodes WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent episodes: %w", err)
	}
	return episodes, nil
}

// GetByIDs returns the episodes for the given IDs, in no guaranteed
// order
func (r *EpisodeRepository) GetByIDs(ctx context.Context, episodeIDs []int64) ([]models.Episode, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM episodes WHERE id IN (?)
	`, episodeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build episode query: %w", err)
	}

	var episodes []models.Episode
	if err := r.db.DB().SelectContext(ctx, &episodes, r.db.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get episodes: %w", err)
	}
	return episodes, nil
}

// CountByUser returns the total episode count, the learning signal of
// the sync rate
func (r *EpisodeRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM episodes WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count episodes: %w", err)
	}
	return count, nil
}

// ListCalibrations returns the newest expression calibration maps,
// newest first
func (r *EpisodeRepository) ListCalibrations(ctx context.Context, userID int64, limit int) ([]models.JSONMap, error) {
	var maps []models.JSONMap
	err := r.db.DB().SelectContext(ctx, &maps, `
		SELECT expression_calibration FROM episodes
		WHERE user_id = $1 AND expression_calibration IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	return maps, nil
}

// ListStyleTags returns the newest style tag maps, newest first
func (r *EpisodeRepository) ListStyleTags(ctx context.Context, userID int64, limit int) ([]models.JSONMap, error) {
	var maps []models.JSONMap
	err := r.db.DB().SelectContext(ctx, &maps, `
		SELECT style_tags FROM episodes
		WHERE user_id = $1 AND style_tags IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list style tags: %w", err)
	}
	return maps, nil
}

// FindSimilar searches the vector index for episodes semantically near
// the query text. Returns nil when no index is configured.
func (r *EpisodeRepository) FindSimilar(ctx context.Context, user *models.User, text string, topK int) ([]models.Episode, error) {
	if r.vectors == nil || text == "" {
		return nil, nil
	}

	matches, err := r.vectors.Query(ctx, user.TelegramID, text, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar episodes: %w", err)
	}

	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		id, ok := parseVectorID(m.ID)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	episodes, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Preserve score order from the index
	byID := make(map[int64]*models.Episode, len(episodes))
	for i := range episodes {
		byID[episodes[i].ID] = &episodes[i]
	}
	ordered := make([]models.Episode, 0, len(ids))
	for _, id := range ids {
		if ep, ok := byID[id]; ok {
			ordered = append(ordered, *ep)
		}
	}
	return ordered, nil
}

func parseVectorID(vectorID string) (int64, bool) {
	raw, ok := strings.CutPrefix(vectorID, "ep_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
