package trades

import (
	"context"
	"strings"
	"testing"

	"github.com/tradefork/engine/pkg/models"
)

type trackerFixture struct {
	tracker    *Tracker
	store      *fakeStore
	venue      *fakeVenue
	messenger  *fakeMessenger
	principles *fakePrinciples
}

func newTrackerFixture() *trackerFixture {
	f := &trackerFixture{
		store:      newFakeStore(),
		venue:      &fakeVenue{name: "binance"},
		messenger:  &fakeMessenger{},
		principles: &fakePrinciples{},
	}
	conns := &fakeConns{conns: []models.ExchangeConnection{
		{ID: 10, UserID: 1, ExchangeName: "binance", IsActive: true},
	}}
	f.tracker = NewTracker(f.store, conns, &fakeVenues{venue: f.venue}, f.principles, &fakeMessages{}, f.messenger)
	return f
}

func TestTrackerCommentsOnAvgWinCross(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}
	f.venue.ticker = 113000 // +13%, above the 12% default

	if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
		t.Fatalf("CheckPositions failed: %v", err)
	}
	if len(f.messenger.texts) != 1 {
		t.Fatalf("messages = %d, want 1", len(f.messenger.texts))
	}
	text := f.messenger.texts[0]
	if !strings.Contains(text, "📊 BTC/USDT +13.0%") || !strings.Contains(text, "평균 익절 +12.0%인데 넘었어") {
		t.Errorf("unexpected commentary: %q", text)
	}
	if !strings.Contains(text, "현재가 113,000") {
		t.Errorf("commentary missing current price: %q", text)
	}
}

func TestTrackerDebouncesRepeatedCrossing(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}
	f.venue.ticker = 113000

	for i := 0; i < 3; i++ {
		if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
			t.Fatalf("CheckPositions failed: %v", err)
		}
	}
	if len(f.messenger.texts) != 1 {
		t.Errorf("messages = %d, want 1 per crossing", len(f.messenger.texts))
	}
}

func TestTrackerReannouncesAfterRecovery(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}

	f.venue.ticker = 113000
	f.tracker.CheckPositions(context.Background(), testUser())
	f.venue.ticker = 105000 // back below the threshold
	f.tracker.CheckPositions(context.Background(), testUser())
	f.venue.ticker = 114000
	f.tracker.CheckPositions(context.Background(), testUser())

	if len(f.messenger.texts) != 2 {
		t.Errorf("messages = %d, want one per distinct crossing", len(f.messenger.texts))
	}
}

func TestTrackerStopLossFromPrinciple(t *testing.T) {
	f := newTrackerFixture()
	f.principles.principles = []models.Principle{{Text: "손절 -5% 무조건 지키기", IsActive: true}}
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}
	f.venue.ticker = 94000 // -6%

	if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
		t.Fatalf("CheckPositions failed: %v", err)
	}
	if len(f.messenger.texts) != 1 {
		t.Fatalf("messages = %d, want 1", len(f.messenger.texts))
	}
	text := f.messenger.texts[0]
	if !strings.Contains(text, "⚠️ BTC/USDT -6.0%") || !strings.Contains(text, "손절 -5%라고 했잖아") {
		t.Errorf("unexpected commentary: %q", text)
	}
}

func TestTrackerAvgLossWithoutPrinciple(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}
	f.venue.ticker = 94000 // -6%, past the -5% default avg loss

	if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
		t.Fatalf("CheckPositions failed: %v", err)
	}
	if len(f.messenger.texts) != 1 || !strings.Contains(f.messenger.texts[0], "평균 손절 -5.0%야") {
		t.Errorf("unexpected commentary: %v", f.messenger.texts)
	}
}

func TestTrackerShortSidePnl(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideShort, 100000, 0.05)}
	f.venue.ticker = 87000 // short is +13%

	if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
		t.Fatalf("CheckPositions failed: %v", err)
	}
	if len(f.messenger.texts) != 1 || !strings.Contains(f.messenger.texts[0], "+13.0%") {
		t.Errorf("unexpected commentary: %v", f.messenger.texts)
	}
}

func TestTrackerQuietInsideThresholds(t *testing.T) {
	f := newTrackerFixture()
	f.store.trades = []*models.Trade{openTrade(1, "BTC/USDT", models.SideLong, 100000, 0.05)}
	f.venue.ticker = 102000 // +2%

	if err := f.tracker.CheckPositions(context.Background(), testUser()); err != nil {
		t.Fatalf("CheckPositions failed: %v", err)
	}
	if len(f.messenger.texts) != 0 {
		t.Errorf("no threshold crossed, got %v", f.messenger.texts)
	}
}

func TestExtractStopLossAlwaysNegative(t *testing.T) {
	f := newTrackerFixture()
	f.principles.principles = []models.Principle{{Text: "stop loss 7% 지키자", IsActive: true}}

	got := f.tracker.extractStopLoss(context.Background(), 1)
	if got == nil || *got != -7 {
		t.Errorf("stop loss = %v, want -7", got)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		113000:  "113,000",
		950:     "950",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		if got := formatPrice(in); got != want {
			t.Errorf("formatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}
