package exchange

import (
	"context"
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Source is a per-user authenticated view of one exchange account.
// Implementations must never log or wrap credential material.
type Source interface {
	Name() string
	ListOrdersSince(ctx context.Context, sinceMs int64) ([]models.Order, error)
	FetchBalances(ctx context.Context) (map[string]float64, error)
	FetchPositions(ctx context.Context) ([]models.Position, error)
	FetchTicker(ctx context.Context, symbol string) (float64, error)
	Close() error
}

// ccxtVenue is the slice of the generated CCXT surface this adapter
// touches; each supported exchange type satisfies it
type ccxtVenue interface {
	FetchMyTrades(options ...ccxt.FetchMyTradesOptions) ([]ccxt.Trade, error)
	FetchBalance(params ...ccxt.FetchBalanceOptions) (ccxt.Balances, error)
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]map[string]interface{}, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
}

// CCXTSource adapts a CCXT exchange client to the Source interface
type CCXTSource struct {
	name    string
	venue   ccxtVenue
	futures bool
}

// NewSource creates an authenticated exchange source. Keys arrive
// already decrypted and are handed straight to the client, never
// retained here.
func NewSource(exchangeName, apiKey, secret string) (*CCXTSource, error) {
	options := map[string]interface{}{
		"apiKey": apiKey,
		"secret": secret,
	}

	switch strings.ToLower(exchangeName) {
	case "binance":
		client := ccxt.NewBinance(options)
		client.SetOption("defaultType", "future")
		client.SetOption("adjustForTimeDifference", true)
		return &CCXTSource{name: "binance", venue: client, futures: true}, nil
	case "upbit":
		client := ccxt.NewUpbit(options)
		return &CCXTSource{name: "upbit", venue: client}, nil
	case "bithumb":
		client := ccxt.NewBithumb(options)
		return &CCXTSource{name: "bithumb", venue: client}, nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", exchangeName)
	}
}

func (s *CCXTSource) Name() string {
	return s.name
}

// ListOrdersSince returns filled trades newer than sinceMs, oldest
// first, normalized for trade detection
func (s *CCXTSource) ListOrdersSince(ctx context.Context, sinceMs int64) ([]models.Order, error) {
	trades, err := s.venue.FetchMyTrades(ccxt.WithFetchMyTradesSince(sinceMs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trades from %s: %w", s.name, err)
	}

	orders := make([]models.Order, 0, len(trades))
	for _, trade := range trades {
		ts := derefInt64(trade.Timestamp)
		if ts < sinceMs {
			continue
		}
		orders = append(orders, models.Order{
			Symbol:      derefString(trade.Symbol),
			Side:        strings.ToLower(derefString(trade.Side)),
			Amount:      derefFloat(trade.Amount),
			Cost:        derefFloat(trade.Cost),
			TimestampMs: ts,
			Status:      "closed",
			Type:        derefString(trade.Type),
		})
	}

	return orders, nil
}

// FetchBalances returns total balance per currency, skipping the
// aggregate keys CCXT mixes into the balance map
func (s *CCXTSource) FetchBalances(ctx context.Context) (map[string]float64, error) {
	balance, err := s.venue.FetchBalance()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance from %s: %w", s.name, err)
	}

	skip := map[string]bool{
		"info": true, "total": true, "free": true, "used": true,
		"timestamp": true, "datetime": true,
	}

	balances := make(map[string]float64)
	for currency, bal := range balance {
		if skip[currency] {
			continue
		}
		balMap, ok := bal.(map[string]interface{})
		if !ok {
			continue
		}
		if total := mapFloat(balMap, "total"); total > 0 {
			balances[currency] = total
		}
	}

	return balances, nil
}

// quoteAssets never become spot positions themselves
var quoteAssets = map[string]bool{
	"KRW": true, "USDT": true, "BUSD": true, "BTC": true,
}

// FetchPositions returns open derivatives positions. Spot-only venues
// report synthetic long holdings instead; a CCXT fetch error is
// absorbed and an empty slice returned.
func (s *CCXTSource) FetchPositions(ctx context.Context) ([]models.Position, error) {
	if !s.futures {
		return s.spotPositions(ctx)
	}

	positions, err := s.venue.FetchPositions()
	if err != nil {
		logger.Debug("position fetch unsupported or failed",
			zap.String("exchange", s.name),
			zap.Error(err),
		)
		return nil, nil
	}

	result := make([]models.Position, 0, len(positions))
	for _, pos := range positions {
		contracts := mapFloat(pos, "contracts")
		if contracts == 0 {
			continue
		}

		side := models.SideLong
		size := contracts
		if contracts < 0 {
			side = models.SideShort
			size = -contracts
		}
		if ccxtSide := strings.ToLower(mapString(pos, "side")); ccxtSide == "short" {
			side = models.SideShort
		}

		result = append(result, models.Position{
			Symbol:   mapString(pos, "symbol"),
			Side:     side,
			Size:     size,
			Entry:    mapFloat(pos, "entryPrice"),
			Leverage: int(mapFloat(pos, "leverage")),
		})
	}

	return result, nil
}

// spotPositions derives long-only positions from non-quote balances.
// Spot holdings carry no entry price, so Entry stays zero.
func (s *CCXTSource) spotPositions(ctx context.Context) ([]models.Position, error) {
	balances, err := s.FetchBalances(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]models.Position, 0, len(balances))
	for asset, amount := range balances {
		if quoteAssets[asset] {
			continue
		}
		positions = append(positions, models.Position{
			Symbol:   asset + "/KRW",
			Side:     models.SideLong,
			Size:     amount,
			Leverage: 1,
		})
	}
	return positions, nil
}

// FetchTicker returns the last price for a unified CCXT symbol
// (BTC/USDT on binance, BTC/KRW on the Korean venues)
func (s *CCXTSource) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	ticker, err := s.venue.FetchTicker(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker %s from %s: %w", symbol, s.name, err)
	}
	if ticker.Last == nil {
		return 0, fmt.Errorf("no last price for %s on %s", symbol, s.name)
	}
	return *ticker.Last, nil
}

// Close releases the client. CCXT holds no persistent connections.
func (s *CCXTSource) Close() error {
	return nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func mapFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func mapString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
