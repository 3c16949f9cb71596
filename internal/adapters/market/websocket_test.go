package market

import (
	"encoding/json"
	"testing"
)

func TestHandleMiniTicker(t *testing.T) {
	feed := NewPriceFeed([]string{"BTC"})
	defer feed.Close()

	data := json.RawMessage(`{"s":"BTCUSDT","c":"97500.50","h":"99000","l":"95000","q":"1500000000"}`)
	feed.handleMiniTicker(data)

	select {
	case tick := <-feed.Ticks():
		if tick.Symbol != "BTC" {
			t.Errorf("expected symbol BTC, got %s", tick.Symbol)
		}
		if last, _ := tick.Value.Float("last"); last != 97500.50 {
			t.Errorf("expected last=97500.50, got %v", last)
		}
	default:
		t.Fatal("expected a tick on the channel")
	}
}

func TestHandleMiniTickerNonUSDTPair(t *testing.T) {
	feed := NewPriceFeed([]string{"BTC"})
	defer feed.Close()

	data := json.RawMessage(`{"s":"BTCKRW","c":"1","h":"1","l":"1","q":"1"}`)
	feed.handleMiniTicker(data)

	select {
	case tick := <-feed.Ticks():
		t.Fatalf("expected no tick for non-USDT pair, got %+v", tick)
	default:
	}
}
