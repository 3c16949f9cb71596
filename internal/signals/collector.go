package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/market"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Collected is the record a pipeline run hands to the judge
type Collected struct {
	Symbol           string
	BaseData         models.JSONMap
	APIData          models.JSONMap
	SearchData       string
	SufficientAtTier int
}

// StreamLister supplies the user's stream catalog
type StreamLister interface {
	UserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error)
}

// OpenTradeLister supplies the user's open positions
type OpenTradeLister interface {
	ListOpen(ctx context.Context, userID int64) ([]models.Trade, error)
}

// SymbolAPI is the low-cost external data surface
type SymbolAPI interface {
	SymbolNews(ctx context.Context, symbol string) ([]models.JSONMap, error)
}

// WebSearcher is the medium-cost search surface
type WebSearcher interface {
	Search(ctx context.Context, message string) string
}

// Collector gathers judge input in cost order and stops as soon as
// the cheap tiers are sufficient
type Collector struct {
	streams  StreamLister
	trades   OpenTradeLister
	api      SymbolAPI
	searcher WebSearcher
}

// NewCollector creates the tiered collector
func NewCollector(streams StreamLister, trades OpenTradeLister, api SymbolAPI, searcher WebSearcher) *Collector {
	return &Collector{
		streams:  streams,
		trades:   trades,
		api:      api,
		searcher: searcher,
	}
}

// Collect runs the tiers for one fired signal trigger. Base data is
// free and always included; the API tier is sufficient when it yields
// price, a derivatives signal, and news; search only runs past that.
func (c *Collector) Collect(ctx context.Context, user *models.User, trigger *models.UserTrigger) (*Collected, error) {
	symbol := TriggerSymbol(trigger)

	result := &Collected{
		Symbol:           symbol,
		BaseData:         models.JSONMap{},
		APIData:          models.JSONMap{},
		SufficientAtTier: 1,
	}

	base, err := c.collectBase(ctx, user.ID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to collect base data: %w", err)
	}
	result.BaseData = base

	hasPrice := base["price"] != nil
	hasDerivatives := base["funding"] != nil || base["oi"] != nil

	result.APIData = c.collectAPI(ctx, symbol)
	result.SufficientAtTier = 2

	if hasPrice && hasDerivatives && result.APIData["news"] != nil {
		logger.Info("signal collection sufficient",
			zap.String("symbol", symbol),
			zap.Int("tier", result.SufficientAtTier),
		)
		return result, nil
	}

	if symbol != "" {
		result.SearchData = c.searcher.Search(ctx, symbol+" crypto analysis latest news")
		result.SufficientAtTier = 3
	}

	logger.Info("signal collection complete",
		zap.String("symbol", symbol),
		zap.Int("tier", result.SufficientAtTier),
	)
	return result, nil
}

// collectBase pulls relevant hot+warm stream values plus open
// positions. Streams for the trigger's symbol keep their plain type
// as the key; BTC/ETH market context is always included, suffixed.
func (c *Collector) collectBase(ctx context.Context, userID int64, symbol string) (models.JSONMap, error) {
	streams, err := c.streams.UserStreams(ctx, userID, models.TempHot, models.TempWarm)
	if err != nil {
		return nil, err
	}

	data := models.JSONMap{}
	upper := strings.ToUpper(symbol)
	for i := range streams {
		s := &streams[i]
		if s.LastValue == nil {
			continue
		}
		switch {
		case s.Symbol == nil || (upper != "" && strings.Contains(strings.ToUpper(*s.Symbol), upper)):
			data[s.StreamType] = s.LastValue
		case *s.Symbol == "BTC" || *s.Symbol == "ETH":
			data[s.StreamType+"_"+*s.Symbol] = s.LastValue
		}
	}

	open, err := c.trades.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		positions := make([]interface{}, 0, len(open))
		for i := range open {
			t := &open[i]
			positions = append(positions, models.JSONMap{
				"symbol":      t.Symbol,
				"side":        t.Side,
				"entry_price": t.EntryPrice.String(),
				"leverage":    t.Leverage,
			})
		}
		data["positions"] = positions
	}

	return data, nil
}

// collectAPI gathers symbol-keyed external data; failures degrade to
// an empty map so the pipeline escalates instead of aborting
func (c *Collector) collectAPI(ctx context.Context, symbol string) models.JSONMap {
	data := models.JSONMap{}
	if symbol == "" {
		return data
	}

	news, err := c.api.SymbolNews(ctx, symbol)
	if err != nil {
		logger.Warn("symbol news collection failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return data
	}
	if len(news) > 0 {
		items := make([]interface{}, len(news))
		for i, n := range news {
			items[i] = n
		}
		data["news"] = items
	}
	return data
}

// TriggerSymbol extracts the symbol a trigger concerns, falling back
// to a ticker-looking token in its description
func TriggerSymbol(trigger *models.UserTrigger) string {
	if trigger.Condition != nil {
		if symbol, ok := trigger.Condition.String("symbol"); ok && symbol != "" {
			return strings.ToUpper(symbol)
		}
	}
	if symbols := market.ExtractSymbols(trigger.Description); len(symbols) > 0 {
		return symbols[0]
	}
	return ""
}

// FormatCollected renders the collected record as prompt text
func FormatCollected(collected *Collected) string {
	var parts []string

	if len(collected.BaseData) > 0 {
		parts = append(parts, "## Base 데이터\n"+formatSection(collected.BaseData, 15))
	}
	if len(collected.APIData) > 0 {
		parts = append(parts, "## 외부 API\n"+formatSection(collected.APIData, 10))
	}
	if collected.SearchData != "" {
		search := collected.SearchData
		if runes := []rune(search); len(runes) > 1500 {
			search = string(runes[:1500])
		}
		parts = append(parts, "## 웹 검색\n"+search)
	}

	if len(parts) == 0 {
		return "수집 데이터 없음"
	}
	return strings.Join(parts, "\n\n")
}

func formatSection(data models.JSONMap, maxLines int) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(lines) >= maxLines {
			break
		}
		rendered, err := json.Marshal(data[k])
		if err != nil {
			continue
		}
		text := string(rendered)
		if runes := []rune(text); len(runes) > 300 {
			text = string(runes[:300])
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", k, text))
	}
	return strings.Join(lines, "\n")
}
