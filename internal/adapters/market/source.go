package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

const (
	binanceSpotURL    = "https://api.binance.com"
	binanceFuturesURL = "https://fapi.binance.com"
	upbitURL          = "https://api.upbit.com"
	cryptoPanicURL    = "https://cryptopanic.com/api/free/v1/posts/"
	fearGreedURL      = "https://api.alternative.me/fng/?limit=1"
	usdKrwURL         = "https://api.exchangerate-api.com/v4/latest/USD"

	httpTimeout = 10 * time.Second
)

// Source fetches public market data by (stream_type, symbol).
// A failed fetch returns (nil, error); the caller retries on the next
// poll cycle, nothing is marked stale.
type Source struct {
	client            *http.Client
	cryptoPanicAPIKey string

	// Endpoint bases, overridable in tests
	spotURL    string
	futuresURL string
	upbitBase  string
	newsURL    string
	fngURL     string
	fxURL      string

	// Daily-volume baseline per symbol for volume_ratio, refreshed
	// lazily because klines are too heavy for every hot tick
	baselineMu  sync.Mutex
	baselines   map[string]volumeBaseline
	baselineTTL time.Duration
}

type volumeBaseline struct {
	sma       float64
	fetchedAt time.Time
}

// NewSource creates a market data source
func NewSource(cfg *config.MarketConfig) *Source {
	return &Source{
		client:            &http.Client{Timeout: httpTimeout},
		cryptoPanicAPIKey: cfg.CryptoPanicAPIKey,
		spotURL:           binanceSpotURL,
		futuresURL:        binanceFuturesURL,
		upbitBase:         upbitURL,
		newsURL:           cryptoPanicURL,
		fngURL:            fearGreedURL,
		fxURL:             usdKrwURL,
		baselines:         make(map[string]volumeBaseline),
		baselineTTL:       10 * time.Minute,
	}
}

// Fetch dispatches on stream type and returns the stream value shape
// for that type, or an error when the upstream call failed
func (s *Source) Fetch(ctx context.Context, streamType, symbol string, streamConfig models.JSONMap) (models.JSONMap, error) {
	switch streamType {
	case models.StreamPrice:
		return s.fetchPrice(ctx, defaultSymbol(symbol))
	case models.StreamFunding:
		return s.fetchFunding(ctx, defaultSymbol(symbol))
	case models.StreamOI:
		return s.fetchOpenInterest(ctx, defaultSymbol(symbol))
	case models.StreamNews:
		return s.fetchNews(ctx)
	case models.StreamIndicator:
		switch symbol {
		case "fear_greed":
			return s.fetchFearGreed(ctx)
		case "rsi":
			target := "BTC"
			if v, ok := streamConfig.String("symbol"); ok && v != "" {
				target = v
			}
			return s.fetchRSI(ctx, target)
		}
		return nil, fmt.Errorf("unknown indicator %q", symbol)
	case models.StreamSpread:
		if symbol == "kimchi" {
			return s.fetchKimchiSpread(ctx)
		}
		return nil, fmt.Errorf("unknown spread %q", symbol)
	default:
		return nil, fmt.Errorf("unknown stream type %q", streamType)
	}
}

func defaultSymbol(symbol string) string {
	if symbol == "" {
		return "BTC"
	}
	return strings.ToUpper(symbol)
}

func (s *Source) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// fetchPrice returns the 24h ticker for SYMBOL/USDT
func (s *Source) fetchPrice(ctx context.Context, symbol string) (models.JSONMap, error) {
	pair := symbol + "USDT"

	var data struct {
		LastPrice          string `json:"lastPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := s.getJSON(ctx, s.spotURL+"/api/v3/ticker/24hr?symbol="+pair, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}

	value := models.JSONMap{
		"last":           parseFloat(data.LastPrice),
		"high_24h":       parseFloat(data.HighPrice),
		"low_24h":        parseFloat(data.LowPrice),
		"volume_24h":     parseFloat(data.QuoteVolume),
		"change_24h_pct": parseFloat(data.PriceChangePercent),
	}

	if ratio, ok := s.volumeRatio(ctx, pair, parseFloat(data.QuoteVolume)); ok {
		value["volume_ratio"] = ratio
	}

	return value, nil
}

// volumeRatio compares current 24h volume against the 20-day SMA of
// daily quote volumes. The baseline is cached per symbol.
func (s *Source) volumeRatio(ctx context.Context, pair string, volume24h float64) (float64, bool) {
	s.baselineMu.Lock()
	baseline, ok := s.baselines[pair]
	s.baselineMu.Unlock()

	if !ok || time.Since(baseline.fetchedAt) > s.baselineTTL {
		sma, err := s.fetchVolumeBaseline(ctx, pair)
		if err != nil {
			logger.Debug("failed to refresh volume baseline",
				zap.String("pair", pair),
				zap.Error(err),
			)
			if !ok {
				return 0, false
			}
		} else {
			baseline = volumeBaseline{sma: sma, fetchedAt: time.Now()}
			s.baselineMu.Lock()
			s.baselines[pair] = baseline
			s.baselineMu.Unlock()
		}
	}

	if baseline.sma <= 0 {
		return 0, false
	}
	return volume24h / baseline.sma, true
}

func (s *Source) fetchVolumeBaseline(ctx context.Context, pair string) (float64, error) {
	var klines [][]interface{}
	u := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1d&limit=21", s.spotURL, pair)
	if err := s.getJSON(ctx, u, &klines); err != nil {
		return 0, err
	}
	if len(klines) < 2 {
		return 0, fmt.Errorf("not enough klines for %s", pair)
	}

	// Drop the in-progress day, use quote volume (index 7)
	volumes := make([]float64, 0, len(klines)-1)
	for _, k := range klines[:len(klines)-1] {
		if len(k) < 8 {
			continue
		}
		if v, ok := k[7].(string); ok {
			volumes = append(volumes, parseFloat(v))
		}
	}
	if len(volumes) == 0 {
		return 0, fmt.Errorf("no volumes parsed for %s", pair)
	}

	sma := indicator.Sma(len(volumes), volumes)
	return sma[len(sma)-1], nil
}

// fetchFunding returns the latest perpetual funding rate
func (s *Source) fetchFunding(ctx context.Context, symbol string) (models.JSONMap, error) {
	pair := symbol + "USDT"

	var data []struct {
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
	}
	u := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=1", s.futuresURL, pair)
	if err := s.getJSON(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch funding for %s: %w", symbol, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no funding data for %s", symbol)
	}

	rate := parseFloat(data[0].FundingRate)
	return models.JSONMap{
		"rate":     rate,
		"rate_pct": rate * 100,
		"ts":       data[0].FundingTime,
	}, nil
}

// fetchOpenInterest returns current futures open interest. change_pct
// is computed upstream against the previous persisted value.
func (s *Source) fetchOpenInterest(ctx context.Context, symbol string) (models.JSONMap, error) {
	pair := symbol + "USDT"

	var data struct {
		OpenInterest string `json:"openInterest"`
	}
	u := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", s.futuresURL, pair)
	if err := s.getJSON(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch open interest for %s: %w", symbol, err)
	}

	return models.JSONMap{
		"open_interest": parseFloat(data.OpenInterest),
		"symbol":        pair,
	}, nil
}

// fetchNews returns hot headlines from CryptoPanic
func (s *Source) fetchNews(ctx context.Context) (models.JSONMap, error) {
	if s.cryptoPanicAPIKey == "" {
		return models.JSONMap{
			"headlines": []interface{}{},
			"count":     0,
			"source":    "cryptopanic",
			"error":     "API key not set",
		}, nil
	}

	params := url.Values{}
	params.Set("auth_token", s.cryptoPanicAPIKey)
	params.Set("kind", "news")
	params.Set("filter", "hot")
	params.Set("public", "true")

	var data struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := s.getJSON(ctx, s.newsURL+"?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}

	headlines := make([]interface{}, 0, 10)
	for i, r := range data.Results {
		if i >= 10 {
			break
		}
		headlines = append(headlines, r.Title)
	}

	return models.JSONMap{
		"headlines": headlines,
		"count":     len(headlines),
		"source":    "cryptopanic",
	}, nil
}

// SymbolNews returns important headlines for one currency, used by
// the signal collector's low-cost tier. Without a key it returns nil
// so the collector escalates to search.
func (s *Source) SymbolNews(ctx context.Context, symbol string) ([]models.JSONMap, error) {
	if s.cryptoPanicAPIKey == "" || symbol == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("auth_token", s.cryptoPanicAPIKey)
	params.Set("currencies", strings.ToUpper(symbol))
	params.Set("kind", "news")
	params.Set("filter", "important")

	var data struct {
		Results []struct {
			Title     string `json:"title"`
			URL       string `json:"url"`
			CreatedAt string `json:"created_at"`
		} `json:"results"`
	}
	if err := s.getJSON(ctx, s.newsURL+"?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", symbol, err)
	}

	items := make([]models.JSONMap, 0, 5)
	for i, r := range data.Results {
		if i >= 5 {
			break
		}
		items = append(items, models.JSONMap{
			"title":      r.Title,
			"url":        r.URL,
			"created_at": r.CreatedAt,
		})
	}
	return items, nil
}

// fetchFearGreed returns the alternative.me Fear & Greed index
func (s *Source) fetchFearGreed(ctx context.Context) (models.JSONMap, error) {
	var data struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
			Timestamp           string `json:"timestamp"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, s.fngURL, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch fear & greed index: %w", err)
	}
	if len(data.Data) == 0 {
		return nil, fmt.Errorf("empty fear & greed response")
	}

	return models.JSONMap{
		"value":          parseFloat(data.Data[0].Value),
		"classification": data.Data[0].ValueClassification,
		"ts":             data.Data[0].Timestamp,
	}, nil
}

// fetchRSI computes RSI(14) over hourly closes
func (s *Source) fetchRSI(ctx context.Context, symbol string) (models.JSONMap, error) {
	pair := defaultSymbol(symbol) + "USDT"

	var klines [][]interface{}
	u := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1h&limit=100", s.spotURL, pair)
	if err := s.getJSON(ctx, u, &klines); err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		if len(k) < 5 {
			continue
		}
		if v, ok := k[4].(string); ok {
			closes = append(closes, parseFloat(v))
		}
	}
	if len(closes) < 15 {
		return nil, fmt.Errorf("not enough closes for RSI on %s", symbol)
	}

	_, rsi := indicator.Rsi(closes)
	return models.JSONMap{
		"value":     rsi[len(rsi)-1],
		"period":    14,
		"timeframe": "1h",
		"symbol":    defaultSymbol(symbol),
	}, nil
}

// fetchKimchiSpread compares Upbit KRW-BTC against Binance BTCUSDT
// converted through USD/KRW
func (s *Source) fetchKimchiSpread(ctx context.Context) (models.JSONMap, error) {
	var upbit []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := s.getJSON(ctx, s.upbitBase+"/v1/ticker?markets=KRW-BTC", &upbit); err != nil {
		return nil, fmt.Errorf("failed to fetch upbit ticker: %w", err)
	}
	if len(upbit) == 0 {
		return nil, fmt.Errorf("empty upbit ticker response")
	}

	var binance struct {
		Price string `json:"price"`
	}
	if err := s.getJSON(ctx, s.spotURL+"/api/v3/ticker/price?symbol=BTCUSDT", &binance); err != nil {
		return nil, fmt.Errorf("failed to fetch binance ticker: %w", err)
	}

	var rates struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := s.getJSON(ctx, s.fxURL, &rates); err != nil {
		return nil, fmt.Errorf("failed to fetch USD/KRW rate: %w", err)
	}

	upbitPrice := upbit[0].TradePrice
	binancePrice := parseFloat(binance.Price)
	usdKrw := rates.Rates["KRW"]

	if upbitPrice <= 0 || binancePrice <= 0 || usdKrw <= 0 {
		return nil, fmt.Errorf("incomplete kimchi spread inputs")
	}

	premium := upbitPrice/(binancePrice*usdKrw) - 1
	return models.JSONMap{
		"premium_pct": round2(premium * 100),
		"legs": models.JSONMap{
			"upbit_btc_krw":   upbitPrice,
			"binance_btc_usd": binancePrice,
			"usd_krw":         usdKrw,
		},
	}, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5*sign(f))) / 100
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
