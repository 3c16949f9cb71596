package streams

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tradefork/engine/pkg/models"
)

type fakeStore struct {
	streams map[string]*models.BaseStream
	nextID  int64
	updates map[int64]models.JSONMap
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		streams: make(map[string]*models.BaseStream),
		updates: make(map[int64]models.JSONMap),
	}
}

func presetKey(userID int64, streamType string, symbol *string) string {
	s := ""
	if symbol != nil {
		s = *symbol
	}
	return fmt.Sprintf("%d:%s:%s", userID, streamType, s)
}

func (f *fakeStore) Create(ctx context.Context, userID int64, streamType string, symbol *string, config models.JSONMap) error {
	key := presetKey(userID, streamType, symbol)
	if _, exists := f.streams[key]; exists {
		return nil
	}
	f.nextID++
	f.streams[key] = &models.BaseStream{
		ID:          f.nextID,
		UserID:      userID,
		StreamType:  streamType,
		Symbol:      symbol,
		Config:      config,
		Temperature: models.TempHot,
	}
	return nil
}

func (f *fakeStore) GetByTemperature(ctx context.Context, temperatures ...string) ([]models.BaseStream, error) {
	var out []models.BaseStream
	for _, s := range f.streams {
		for _, t := range temperatures {
			if s.Temperature == t {
				out = append(out, *s)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error) {
	var out []models.BaseStream
	for _, s := range f.streams {
		if s.UserID != userID {
			continue
		}
		for _, t := range temperatures {
			if s.Temperature == t {
				out = append(out, *s)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateValue(ctx context.Context, streamID int64, value models.JSONMap) error {
	f.updates[streamID] = value
	for _, s := range f.streams {
		if s.ID == streamID {
			s.LastValue = value
		}
	}
	return nil
}

func (f *fakeStore) Touch(ctx context.Context, userID int64, symbol string) error {
	for _, s := range f.streams {
		if s.UserID == userID && s.Symbol != nil && *s.Symbol == symbol {
			s.Temperature = models.TempHot
			now := time.Now()
			s.LastMentionedAt = now
		}
	}
	return nil
}

func (f *fakeStore) AutoTransition(ctx context.Context, userID int64, hot, warm int) (int64, int64, error) {
	return 0, 0, nil
}

type fakeCache struct {
	values map[string]models.JSONMap
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]models.JSONMap)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (models.JSONMap, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeCache) Set(ctx context.Context, key string, value models.JSONMap, ttl time.Duration) {
	f.values[key] = value
}

type fakeSource struct {
	values map[string]models.JSONMap
	calls  map[string]int
	errors map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		values: make(map[string]models.JSONMap),
		calls:  make(map[string]int),
		errors: make(map[string]error),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, streamType, symbol string, config models.JSONMap) (models.JSONMap, error) {
	key := streamType + "/" + symbol
	f.calls[key]++
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	return f.values[key], nil
}

func newTestManager() (*Manager, *fakeStore, *fakeCache, *fakeSource) {
	store := newFakeStore()
	cache := newFakeCache()
	source := newFakeSource()
	return NewManager(store, cache, source, 7, 30), store, cache, source
}

func TestEnsureDefaultPresetIdempotent(t *testing.T) {
	m, store, _, _ := newTestManager()
	ctx := context.Background()

	if err := m.EnsureDefaultPreset(ctx, 1); err != nil {
		t.Fatalf("preset failed: %v", err)
	}
	if len(store.streams) != 9 {
		t.Fatalf("expected 9 preset streams, got %d", len(store.streams))
	}

	if err := m.EnsureDefaultPreset(ctx, 1); err != nil {
		t.Fatalf("second preset failed: %v", err)
	}
	if len(store.streams) != 9 {
		t.Errorf("preset must be idempotent, got %d streams", len(store.streams))
	}
}

func TestSetValueCachesHotOnly(t *testing.T) {
	m, _, cache, _ := newTestManager()
	ctx := context.Background()

	sym := "BTC"
	hot := &models.BaseStream{ID: 1, UserID: 1, StreamType: models.StreamPrice, Symbol: &sym, Temperature: models.TempHot}
	warm := &models.BaseStream{ID: 2, UserID: 1, StreamType: models.StreamFunding, Symbol: &sym, Temperature: models.TempWarm}

	if err := m.SetValue(ctx, hot, models.JSONMap{"last": 100000.0}); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := m.SetValue(ctx, warm, models.JSONMap{"rate": 0.01}); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	if _, ok := cache.values["base:1:price:BTC"]; !ok {
		t.Error("hot stream value must be cached")
	}
	if _, ok := cache.values["base:1:funding:BTC"]; ok {
		t.Error("warm stream value must not be cached")
	}
}

func TestHotSnapshotPrefersCache(t *testing.T) {
	m, store, cache, _ := newTestManager()
	ctx := context.Background()

	sym := "BTC"
	eth := "ETH"
	store.Create(ctx, 1, models.StreamPrice, &sym, nil)
	store.Create(ctx, 1, models.StreamPrice, &eth, nil)
	store.Create(ctx, 1, models.StreamNews, nil, nil)

	// BTC has a fresh cache entry and a stale persisted value
	cache.values["base:1:price:BTC"] = models.JSONMap{"last": 101000.0}
	for _, s := range store.streams {
		if s.Symbol != nil && *s.Symbol == "BTC" {
			s.LastValue = models.JSONMap{"last": 99000.0}
		}
		if s.Symbol != nil && *s.Symbol == "ETH" {
			s.LastValue = models.JSONMap{"last": 3000.0}
		}
	}

	snapshot, err := m.HotSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("HotSnapshot failed: %v", err)
	}

	if last, _ := snapshot["price/BTC"].Float("last"); last != 101000.0 {
		t.Errorf("expected cache value 101000, got %v", last)
	}
	if last, _ := snapshot["price/ETH"].Float("last"); last != 3000.0 {
		t.Errorf("expected last_value fallback 3000, got %v", last)
	}
	if _, ok := snapshot["news/all"]; ok {
		t.Error("stream with no value must be absent from snapshot")
	}
}

func TestPollTemperatureFetchesOncePerKey(t *testing.T) {
	m, store, _, source := newTestManager()
	ctx := context.Background()

	sym := "BTC"
	store.Create(ctx, 1, models.StreamPrice, &sym, nil)
	store.Create(ctx, 2, models.StreamPrice, &sym, nil)
	source.values["price/BTC"] = models.JSONMap{"last": 100000.0}

	if err := m.PollTemperature(ctx, models.TempHot); err != nil {
		t.Fatalf("PollTemperature failed: %v", err)
	}

	if source.calls["price/BTC"] != 1 {
		t.Errorf("expected one fetch for two subscribers, got %d", source.calls["price/BTC"])
	}
	if len(store.updates) != 2 {
		t.Errorf("expected both subscriber streams updated, got %d", len(store.updates))
	}
}

func TestPollTemperatureDerivesOIChange(t *testing.T) {
	m, store, _, source := newTestManager()
	ctx := context.Background()

	sym := "BTC"
	store.Create(ctx, 1, models.StreamOI, &sym, nil)
	for _, s := range store.streams {
		s.LastValue = models.JSONMap{"open_interest": 100.0}
	}
	source.values["oi/BTC"] = models.JSONMap{"open_interest": 120.0}

	if err := m.PollTemperature(ctx, models.TempHot); err != nil {
		t.Fatalf("PollTemperature failed: %v", err)
	}

	var updated models.JSONMap
	for _, v := range store.updates {
		updated = v
	}
	if change, ok := updated.Float("change_pct"); !ok || change != 20.0 {
		t.Errorf("expected change_pct=20, got %v (ok=%v)", change, ok)
	}
}

func TestPollTemperatureFetchFailureKeepsLastValue(t *testing.T) {
	m, store, _, source := newTestManager()
	ctx := context.Background()

	sym := "BTC"
	store.Create(ctx, 1, models.StreamPrice, &sym, nil)
	for _, s := range store.streams {
		s.LastValue = models.JSONMap{"last": 99000.0}
	}
	source.errors["price/BTC"] = fmt.Errorf("upstream down")

	if err := m.PollTemperature(ctx, models.TempHot); err != nil {
		t.Fatalf("poll must absorb fetch failures, got: %v", err)
	}
	if len(store.updates) != 0 {
		t.Error("failed fetch must not overwrite the previous value")
	}

	snapshot, _ := m.HotSnapshot(ctx, 1)
	if last, _ := snapshot["price/BTC"].Float("last"); last != 99000.0 {
		t.Errorf("expected stale value to survive, got %v", last)
	}
}
