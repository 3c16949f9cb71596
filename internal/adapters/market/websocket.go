package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Tick is one mini ticker update from the combined stream
type Tick struct {
	Symbol string
	Value  models.JSONMap
}

// PriceFeed streams Binance miniTicker updates for a set of symbols
// over one combined websocket connection. REST polling remains the
// source of truth; the feed only fills the hot cache between polls.
type PriceFeed struct {
	conn           *websocket.Conn
	symbols        []string
	tickChan       chan Tick
	mu             sync.Mutex
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// binanceStreamMessage is one frame from the combined stream endpoint
type binanceStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceMiniTicker struct {
	Symbol      string `json:"s"`
	ClosePrice  string `json:"c"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	QuoteVolume string `json:"q"`
}

// NewPriceFeed creates a mini ticker feed for base symbols (BTC, ETH).
// USDT pairing is applied here.
func NewPriceFeed(symbols []string) *PriceFeed {
	ctx, cancel := context.WithCancel(context.Background())

	return &PriceFeed{
		symbols:        symbols,
		tickChan:       make(chan Tick, 1000),
		reconnectDelay: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect establishes the combined stream connection
func (f *PriceFeed) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.symbols) == 0 {
		return fmt.Errorf("no symbols to stream")
	}

	streams := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		streams = append(streams, strings.ToLower(sym)+"usdt@miniTicker")
	}
	url := "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Binance stream: %w", err)
	}

	f.conn = conn

	go f.readMessages()

	logger.Info("price feed connected",
		zap.Strings("symbols", f.symbols),
	)

	return nil
}

// readMessages reads frames until the connection drops, then reconnects
func (f *PriceFeed) readMessages() {
	defer func() {
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()

		if f.ctx.Err() == nil {
			logger.Info("reconnecting price feed...")
			time.Sleep(f.reconnectDelay)
			if err := f.Connect(); err != nil {
				logger.Error("failed to reconnect price feed", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		_, message, err := f.conn.ReadMessage()
		if err != nil {
			logger.Warn("price feed read error", zap.Error(err))
			return
		}

		var msg binanceStreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("failed to parse price feed frame", zap.Error(err))
			continue
		}

		if len(msg.Data) == 0 {
			continue
		}

		f.handleMiniTicker(msg.Data)
	}
}

func (f *PriceFeed) handleMiniTicker(data json.RawMessage) {
	var ticker binanceMiniTicker
	if err := json.Unmarshal(data, &ticker); err != nil {
		logger.Warn("failed to parse mini ticker", zap.Error(err))
		return
	}

	base := strings.TrimSuffix(ticker.Symbol, "USDT")
	if base == "" || base == ticker.Symbol {
		return
	}

	tick := Tick{
		Symbol: base,
		Value: models.JSONMap{
			"last":       parseFloat(ticker.ClosePrice),
			"high_24h":   parseFloat(ticker.HighPrice),
			"low_24h":    parseFloat(ticker.LowPrice),
			"volume_24h": parseFloat(ticker.QuoteVolume),
		},
	}

	select {
	case f.tickChan <- tick:
	default:
		logger.Warn("tick channel full, dropping tick",
			zap.String("symbol", base),
		)
	}
}

// Ticks returns the channel of mini ticker updates
func (f *PriceFeed) Ticks() <-chan Tick {
	return f.tickChan
}

// Close stops the feed and closes the connection
func (f *PriceFeed) Close() error {
	f.cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		return f.conn.Close()
	}

	return nil
}
