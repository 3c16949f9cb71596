package streams

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Hot values are readable from cache for one minute; hot polls refresh
// well inside that window
const hotCacheTTL = 60 * time.Second

// Store is the persistence surface the manager needs
type Store interface {
	Create(ctx context.Context, userID int64, streamType string, symbol *string, config models.JSONMap) error
	GetByTemperature(ctx context.Context, temperatures ...string) ([]models.BaseStream, error)
	GetUserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error)
	UpdateValue(ctx context.Context, streamID int64, value models.JSONMap) error
	Touch(ctx context.Context, userID int64, symbol string) error
	AutoTransition(ctx context.Context, userID int64, hotThresholdDays, warmThresholdDays int) (int64, int64, error)
}

// ValueCache is the hot-value cache surface
type ValueCache interface {
	Get(ctx context.Context, key string) (models.JSONMap, bool)
	Set(ctx context.Context, key string, value models.JSONMap, ttl time.Duration)
}

// MarketSource fetches one stream value
type MarketSource interface {
	Fetch(ctx context.Context, streamType, symbol string, config models.JSONMap) (models.JSONMap, error)
}

// Manager owns the per-user stream catalog: preset creation,
// temperature lifecycle, value updates, and the hot snapshot the
// trigger engine consumes.
type Manager struct {
	store             Store
	cache             ValueCache
	source            MarketSource
	hotThresholdDays  int
	warmThresholdDays int
}

// NewManager creates the stream manager
func NewManager(store Store, cache ValueCache, source MarketSource, hotThresholdDays, warmThresholdDays int) *Manager {
	return &Manager{
		store:             store,
		cache:             cache,
		source:            source,
		hotThresholdDays:  hotThresholdDays,
		warmThresholdDays: warmThresholdDays,
	}
}

type presetEntry struct {
	streamType string
	symbol     string
}

// defaultPreset is created once when a user finishes onboarding
var defaultPreset = []presetEntry{
	{models.StreamPrice, "BTC"},
	{models.StreamPrice, "ETH"},
	{models.StreamFunding, "BTC"},
	{models.StreamFunding, "ETH"},
	{models.StreamOI, "BTC"},
	{models.StreamOI, "ETH"},
	{models.StreamNews, ""},
	{models.StreamIndicator, "fear_greed"},
	{models.StreamSpread, "kimchi"},
}

// EnsureDefaultPreset creates the starter streams idempotently
func (m *Manager) EnsureDefaultPreset(ctx context.Context, userID int64) error {
	for _, entry := range defaultPreset {
		var symbol *string
		if entry.symbol != "" {
			s := entry.symbol
			symbol = &s
		}
		if err := m.store.Create(ctx, userID, entry.streamType, symbol, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetValue persists the latest value and, for hot streams, writes the
// cache so the next snapshot sees it immediately
func (m *Manager) SetValue(ctx context.Context, stream *models.BaseStream, value models.JSONMap) error {
	if err := m.store.UpdateValue(ctx, stream.ID, value); err != nil {
		return err
	}
	stream.LastValue = value

	if stream.Temperature == models.TempHot {
		m.cache.Set(ctx, stream.CacheKey(), value, hotCacheTTL)
	}
	return nil
}

// Touch restores a symbol's streams to hot on re-mention
func (m *Manager) Touch(ctx context.Context, userID int64, symbol string) error {
	return m.store.Touch(ctx, userID, symbol)
}

// AutoTransition demotes stale streams and returns the counts
func (m *Manager) AutoTransition(ctx context.Context, userID int64) (hotToWarm, warmToCold int64, err error) {
	return m.store.AutoTransition(ctx, userID, m.hotThresholdDays, m.warmThresholdDays)
}

// HotSnapshot returns the user's current hot values keyed by
// "{stream_type}/{symbol|all}", preferring fresh cache over the last
// persisted value. Streams with neither are absent from the map.
func (m *Manager) HotSnapshot(ctx context.Context, userID int64) (map[string]models.JSONMap, error) {
	hotStreams, err := m.store.GetUserStreams(ctx, userID, models.TempHot)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]models.JSONMap, len(hotStreams))
	for i := range hotStreams {
		stream := &hotStreams[i]

		if value, ok := m.cache.Get(ctx, stream.CacheKey()); ok {
			snapshot[stream.SnapshotKey()] = value
			continue
		}
		if stream.LastValue != nil {
			snapshot[stream.SnapshotKey()] = stream.LastValue
		}
	}
	return snapshot, nil
}

// UserStreams lists a user's streams at the given temperatures
func (m *Manager) UserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error) {
	return m.store.GetUserStreams(ctx, userID, temperatures...)
}

// PollTemperature fetches fresh values for every stream at the given
// temperatures. Market data is global, so each distinct
// (type, symbol, config) is fetched once and fanned out to all
// subscriber streams. Fetch failures leave the previous value in
// place for the next cycle.
func (m *Manager) PollTemperature(ctx context.Context, temperatures ...string) error {
	streams, err := m.store.GetByTemperature(ctx, temperatures...)
	if err != nil {
		return err
	}

	fetched := make(map[string]models.JSONMap)
	failed := make(map[string]bool)

	for i := range streams {
		stream := &streams[i]
		key := stream.SnapshotKey()

		value, ok := fetched[key]
		if !ok {
			if failed[key] {
				continue
			}
			value, err = m.source.Fetch(ctx, stream.StreamType, stream.SymbolOrAll(), stream.Config)
			if err != nil {
				logger.Warn("stream fetch failed",
					zap.String("stream", key),
					zap.Error(err),
				)
				failed[key] = true
				continue
			}
			fetched[key] = value
		}

		// Derived open-interest delta needs the previous value
		enriched := enrichValue(stream, value)

		if err := m.SetValue(ctx, stream, enriched); err != nil {
			logger.Warn("failed to persist stream value",
				zap.Int64("stream_id", stream.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// ApplyTick writes a pushed market update (websocket) through the
// same path as polled values, for every hot subscriber of the symbol
func (m *Manager) ApplyTick(ctx context.Context, streamType, symbol string, value models.JSONMap) {
	streams, err := m.store.GetByTemperature(ctx, models.TempHot)
	if err != nil {
		logger.Warn("failed to load hot streams for tick", zap.Error(err))
		return
	}

	for i := range streams {
		stream := &streams[i]
		if stream.StreamType != streamType || stream.SymbolOrAll() != symbol {
			continue
		}

		enriched := mergeTick(stream.LastValue, value)
		if err := m.SetValue(ctx, stream, enriched); err != nil {
			logger.Warn("failed to apply tick",
				zap.Int64("stream_id", stream.ID),
				zap.Error(err),
			)
		}
	}
}

// enrichValue derives fields that need the previous persisted value
func enrichValue(stream *models.BaseStream, value models.JSONMap) models.JSONMap {
	if stream.StreamType != models.StreamOI {
		return value
	}

	current, ok := value.Float("open_interest")
	if !ok {
		return value
	}
	previous, ok := stream.LastValue.Float("open_interest")
	if !ok || previous == 0 {
		return value
	}

	enriched := make(models.JSONMap, len(value)+1)
	for k, v := range value {
		enriched[k] = v
	}
	enriched["change_pct"] = (current - previous) / previous * 100
	return enriched
}

// mergeTick overlays push fields on the last full value so fields the
// feed does not carry (volume_ratio, change_24h_pct) survive
func mergeTick(last, tick models.JSONMap) models.JSONMap {
	merged := make(models.JSONMap, len(last)+len(tick))
	for k, v := range last {
		merged[k] = v
	}
	for k, v := range tick {
		merged[k] = v
	}
	return merged
}
