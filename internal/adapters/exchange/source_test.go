package exchange

import (
	"context"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"github.com/tradefork/engine/pkg/models"
)

type fakeVenue struct {
	trades    []ccxt.Trade
	balance   ccxt.Balances
	positions []map[string]interface{}
	ticker    ccxt.Ticker
}

func (f *fakeVenue) FetchMyTrades(options ...ccxt.FetchMyTradesOptions) ([]ccxt.Trade, error) {
	return f.trades, nil
}

func (f *fakeVenue) FetchBalance(params ...ccxt.FetchBalanceOptions) (ccxt.Balances, error) {
	return f.balance, nil
}

func (f *fakeVenue) FetchPositions(options ...ccxt.FetchPositionsOptions) ([]map[string]interface{}, error) {
	return f.positions, nil
}

func (f *fakeVenue) FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error) {
	return f.ticker, nil
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func i64Ptr(i int64) *int64     { return &i }

func TestListOrdersSinceFiltersAndNormalizes(t *testing.T) {
	venue := &fakeVenue{
		trades: []ccxt.Trade{
			{
				Symbol:    strPtr("BTC/USDT"),
				Side:      strPtr("BUY"),
				Amount:    f64Ptr(0.5),
				Cost:      f64Ptr(48750.0),
				Timestamp: i64Ptr(2000),
				Type:      strPtr("market"),
			},
			{
				Symbol:    strPtr("ETH/USDT"),
				Side:      strPtr("sell"),
				Amount:    f64Ptr(1.0),
				Cost:      f64Ptr(3000.0),
				Timestamp: i64Ptr(500),
			},
		},
	}
	src := &CCXTSource{name: "binance", venue: venue, futures: true}

	orders, err := src.ListOrdersSince(context.Background(), 1000)
	if err != nil {
		t.Fatalf("ListOrdersSince failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order after since filter, got %d", len(orders))
	}
	if orders[0].Side != "buy" {
		t.Errorf("expected lowercased side buy, got %q", orders[0].Side)
	}
	if orders[0].Cost != 48750.0 || orders[0].Amount != 0.5 {
		t.Errorf("unexpected order values: %+v", orders[0])
	}
}

func TestFetchBalancesSkipsAggregates(t *testing.T) {
	venue := &fakeVenue{
		balance: ccxt.Balances{
			"BTC":  map[string]interface{}{"total": 0.7, "free": 0.5, "used": 0.2},
			"USDT": map[string]interface{}{"total": 1000.0},
			"DUST": map[string]interface{}{"total": 0.0},
			"info": map[string]interface{}{},
		},
	}
	src := &CCXTSource{name: "binance", venue: venue}

	balances, err := src.FetchBalances(context.Background())
	if err != nil {
		t.Fatalf("FetchBalances failed: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 currencies, got %d: %v", len(balances), balances)
	}
	if balances["BTC"] != 0.7 {
		t.Errorf("expected BTC total 0.7, got %v", balances["BTC"])
	}
}

func TestFetchPositionsSides(t *testing.T) {
	venue := &fakeVenue{
		positions: []map[string]interface{}{
			{"symbol": "BTC/USDT:USDT", "contracts": 2.0, "entryPrice": 95000.0, "leverage": 5.0},
			{"symbol": "ETH/USDT:USDT", "contracts": -3.0, "entryPrice": 3000.0, "leverage": 2.0},
			{"symbol": "SOL/USDT:USDT", "contracts": 0.0},
		},
	}

	futures := &CCXTSource{name: "binance", venue: venue, futures: true}
	positions, err := futures.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("FetchPositions failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 open positions, got %d", len(positions))
	}
	if positions[0].Side != models.SideLong || positions[0].Size != 2.0 {
		t.Errorf("unexpected long position: %+v", positions[0])
	}
	if positions[1].Side != models.SideShort || positions[1].Size != 3.0 {
		t.Errorf("unexpected short position: %+v", positions[1])
	}
}

func TestFetchPositionsSpotSynthesizesHoldings(t *testing.T) {
	venue := &fakeVenue{
		balance: ccxt.Balances{
			"KRW":  map[string]interface{}{"total": 500000.0},
			"USDT": map[string]interface{}{"total": 300.0},
			"XRP":  map[string]interface{}{"total": 1000.0},
		},
	}

	spot := &CCXTSource{name: "upbit", venue: venue}
	positions, err := spot.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("spot FetchPositions failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 synthetic position, got %d: %+v", len(positions), positions)
	}
	p := positions[0]
	if p.Symbol != "XRP/KRW" || p.Side != models.SideLong {
		t.Errorf("unexpected synthetic position: %+v", p)
	}
	if p.Size != 1000.0 || p.Leverage != 1 || p.Entry != 0 {
		t.Errorf("unexpected synthetic position values: %+v", p)
	}
}

func TestNewSourceRejectsUnknownExchange(t *testing.T) {
	if _, err := NewSource("kraken", "k", "s"); err == nil {
		t.Error("expected error for unsupported exchange")
	}
}
