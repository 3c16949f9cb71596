package patrol

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/models"
)

func testUser() *models.User {
	return &models.User{ID: 1, TelegramID: 777, IsActive: true}
}

type fakeStreamMgr struct {
	hotToWarm, warmToCold int64
}

func (f *fakeStreamMgr) AutoTransition(ctx context.Context, userID int64) (int64, int64, error) {
	return f.hotToWarm, f.warmToCold, nil
}

type fakeLister struct {
	streams []models.BaseStream
}

func (f *fakeLister) UserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error) {
	return f.streams, nil
}

type fakeTriggers struct {
	created  []*models.UserTrigger
	active   []models.UserTrigger
	deferred []models.UserTrigger
	retired  []int64
	marked   []int64
	descs    map[string]bool
}

func (f *fakeTriggers) Create(ctx context.Context, trigger *models.UserTrigger) error {
	trigger.ID = int64(len(f.created) + 100)
	f.created = append(f.created, trigger)
	return nil
}

func (f *fakeTriggers) GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error) {
	return f.active, nil
}

func (f *fakeTriggers) GetDeferred(ctx context.Context, userID int64) ([]models.UserTrigger, error) {
	return f.deferred, nil
}

func (f *fakeTriggers) ActiveDescriptions(ctx context.Context, userID int64, source string) (map[string]bool, error) {
	if f.descs == nil {
		return map[string]bool{}, nil
	}
	return f.descs, nil
}

func (f *fakeTriggers) Retire(ctx context.Context, triggerID int64) error {
	f.retired = append(f.retired, triggerID)
	return nil
}

func (f *fakeTriggers) MarkTriggered(ctx context.Context, triggerID int64) error {
	f.marked = append(f.marked, triggerID)
	return nil
}

type fakeSymbols struct {
	symbols []string
}

func (f *fakeSymbols) TopSymbols(ctx context.Context, userID int64, limit int) ([]string, error) {
	return f.symbols, nil
}

type fakeUnfollowed struct {
	calls int
}

func (f *fakeUnfollowed) CheckUnfollowed(ctx context.Context, user *models.User) error {
	f.calls++
	return nil
}

type fakeSearch struct {
	result string
	calls  int
}

func (f *fakeSearch) Search(ctx context.Context, message string) string {
	f.calls++
	return f.result
}

type fakeLLM struct {
	response string
	calls    int
}

func (f *fakeLLM) Fast(ctx context.Context, req *ai.Request) (*models.LLMResponse, error) {
	f.calls++
	return &models.LLMResponse{Text: f.response, Model: "test-model"}, nil
}

func (f *fakeLLM) Deep(ctx context.Context, req *ai.Request) (*models.LLMResponse, error) {
	return f.Fast(ctx, req)
}

type fakeLogs struct {
	logs []*models.PatrolLog
}

func (f *fakeLogs) Create(ctx context.Context, log *models.PatrolLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeMsgLog struct {
	saved []models.ChatMessage
}

func (f *fakeMsgLog) Save(ctx context.Context, msg *models.ChatMessage) error {
	f.saved = append(f.saved, *msg)
	return nil
}

type fakeMessenger struct {
	texts []string
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	f.texts = append(f.texts, text)
	return len(f.texts), nil
}

func (f *fakeMessenger) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]telegram.Button) (int, error) {
	f.texts = append(f.texts, text)
	return len(f.texts), nil
}

func (f *fakeMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}

type patrolFixture struct {
	service    *Service
	streams    *fakeStreamMgr
	lister     *fakeLister
	triggers   *fakeTriggers
	symbols    *fakeSymbols
	unfollowed *fakeUnfollowed
	search     *fakeSearch
	llm        *fakeLLM
	logs       *fakeLogs
	messenger  *fakeMessenger
}

func newPatrolFixture() *patrolFixture {
	f := &patrolFixture{
		streams:    &fakeStreamMgr{},
		lister:     &fakeLister{},
		triggers:   &fakeTriggers{},
		symbols:    &fakeSymbols{},
		unfollowed: &fakeUnfollowed{},
		search:     &fakeSearch{result: "검색 결과 없음"},
		llm:        &fakeLLM{response: "NO\n아직 아님."},
		logs:       &fakeLogs{},
		messenger:  &fakeMessenger{},
	}
	f.service = NewService(
		f.streams, f.lister, f.triggers, f.symbols, f.unfollowed,
		f.search, f.llm, f.logs, &fakeMsgLog{}, f.messenger, nil,
	)
	return f
}

func hotStream(streamType, symbol string, value models.JSONMap) models.BaseStream {
	s := models.BaseStream{StreamType: streamType, LastValue: value, Temperature: models.TempHot}
	if symbol != "" {
		s.Symbol = &symbol
	}
	return s
}

func TestDetectAnomaly(t *testing.T) {
	cases := []struct {
		name       string
		streamType string
		value      models.JSONMap
		wantType   string
		wantSev    string
	}{
		{"price surge", models.StreamPrice, models.JSONMap{"change_24h_pct": 12.0}, "price_급등", SeverityMedium},
		{"price crash high", models.StreamPrice, models.JSONMap{"change_24h_pct": -25.0}, "price_급락", SeverityHigh},
		{"price quiet", models.StreamPrice, models.JSONMap{"change_24h_pct": 5.0}, "", ""},
		{"funding extreme", models.StreamFunding, models.JSONMap{"rate": 0.06}, "funding_extreme", SeverityHigh},
		{"funding negative extreme", models.StreamFunding, models.JSONMap{"rate": -0.07}, "funding_extreme", SeverityHigh},
		{"funding normal", models.StreamFunding, models.JSONMap{"rate": 0.01}, "", ""},
		{"oi surge", models.StreamOI, models.JSONMap{"change_pct": -16.0}, "oi_surge", SeverityMedium},
		{"oi quiet", models.StreamOI, models.JSONMap{"change_pct": 8.0}, "", ""},
		{"news has no numeric anomaly", models.StreamNews, models.JSONMap{"headlines": []interface{}{"x"}}, "", ""},
		{"missing field", models.StreamPrice, models.JSONMap{"last": 100.0}, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectAnomaly(tc.streamType, "BTC", tc.value)
			if tc.wantType == "" {
				if got != nil {
					t.Fatalf("expected no anomaly, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected an anomaly")
			}
			if got.Type != tc.wantType || got.Severity != tc.wantSev {
				t.Errorf("anomaly = %s/%s, want %s/%s", got.Type, got.Severity, tc.wantType, tc.wantSev)
			}
		})
	}
}

func TestDetectAnomalyDetailFormat(t *testing.T) {
	a := DetectAnomaly(models.StreamFunding, "BTC", models.JSONMap{"rate": 0.06})
	if a.Detail != "BTC 펀딩비 6.00%" {
		t.Errorf("detail = %q", a.Detail)
	}
	a = DetectAnomaly(models.StreamPrice, "SOL", models.JSONMap{"change_24h_pct": 12.3})
	if a.Detail != "SOL 24h +12.3%" {
		t.Errorf("detail = %q", a.Detail)
	}
}

func TestShouldSkip(t *testing.T) {
	f := newPatrolFixture()
	evenHour := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	oddHour := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

	fresh := testUser()
	if f.service.ShouldSkip(fresh, oddHour) {
		t.Error("user with no activity record must never be skipped")
	}

	recentActive := oddHour.Add(-2 * time.Hour)
	active := testUser()
	active.LastActiveAt = &recentActive
	if f.service.ShouldSkip(active, oddHour) {
		t.Error("recently active user must not be skipped")
	}

	staleActive := oddHour.Add(-48 * time.Hour)
	idle := testUser()
	idle.LastActiveAt = &staleActive
	if !f.service.ShouldSkip(idle, oddHour) {
		t.Error("idle user must be skipped on odd hours")
	}
	if f.service.ShouldSkip(idle, evenHour) {
		t.Error("idle user must still run on even hours")
	}
}

func TestRunSynthesizesTriggerForPrimarySymbol(t *testing.T) {
	f := newPatrolFixture()
	f.lister.streams = []models.BaseStream{
		hotStream(models.StreamPrice, "BTC", models.JSONMap{"change_24h_pct": 12.0}),
	}
	f.symbols.symbols = []string{"BTC", "ETH"}

	report, err := f.service.Run(context.Background(), testUser())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.triggers.created) != 1 {
		t.Fatalf("triggers created = %d, want 1", len(f.triggers.created))
	}
	trigger := f.triggers.created[0]
	if trigger.Kind != models.TriggerLLMEvaluated || trigger.Source != models.TriggerSourcePatrol {
		t.Errorf("trigger = %s/%s", trigger.Kind, trigger.Source)
	}
	if trigger.Description != "BTC 24h +12.0%" {
		t.Errorf("description = %q", trigger.Description)
	}
	if len(f.messenger.texts) != 1 || !strings.Contains(f.messenger.texts[0], "⚡ 순찰 감지: BTC 24h +12.0%") {
		t.Errorf("notice = %v", f.messenger.texts)
	}
	if len(report.Findings) != 1 || len(report.Actions) != 1 {
		t.Errorf("report: %d findings, %d actions", len(report.Findings), len(report.Actions))
	}
	if len(f.logs.logs) != 1 {
		t.Error("sweep must be recorded in the patrol log")
	}
	if f.unfollowed.calls != 1 {
		t.Error("unfollowed-signal check must run every sweep")
	}
}

func TestRunSkipsNonPrimaryAndDuplicateAnomalies(t *testing.T) {
	f := newPatrolFixture()
	f.lister.streams = []models.BaseStream{
		hotStream(models.StreamPrice, "DOGE", models.JSONMap{"change_24h_pct": 30.0}),
		hotStream(models.StreamOI, "BTC", models.JSONMap{"change_pct": 20.0}),
	}
	f.symbols.symbols = []string{"BTC"}
	f.triggers.descs = map[string]bool{"BTC OI +20.0%": true}

	if _, err := f.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.triggers.created) != 0 {
		t.Errorf("created = %d, want 0 (non-primary and duplicate)", len(f.triggers.created))
	}
}

func TestRunHighSeverityUsesAlarmEmoji(t *testing.T) {
	f := newPatrolFixture()
	f.lister.streams = []models.BaseStream{
		hotStream(models.StreamPrice, "BTC", models.JSONMap{"change_24h_pct": -25.0}),
	}
	f.symbols.symbols = []string{"BTC"}

	if _, err := f.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.messenger.texts) != 1 || !strings.HasPrefix(f.messenger.texts[0], "🚨") {
		t.Errorf("high severity notice = %v", f.messenger.texts)
	}
}

func TestRunEvaluatesLLMTriggerAndRetiresOnYes(t *testing.T) {
	f := newPatrolFixture()
	f.llm.response = "YES\n펀딩비가 리셋됐어."
	prompt := "펀딩비 정상화되면 알려줘"
	f.triggers.active = []models.UserTrigger{{
		ID: 7, UserID: 1, Kind: models.TriggerLLMEvaluated,
		EvalPrompt: &prompt, Description: "펀딩비 정상화", IsActive: true,
	}}

	report, err := f.service.Run(context.Background(), testUser())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.triggers.retired) != 1 || f.triggers.retired[0] != 7 {
		t.Errorf("retired = %v, want [7]", f.triggers.retired)
	}
	if len(f.messenger.texts) != 1 || !strings.Contains(f.messenger.texts[0], "🧠 순찰 결과: 펀딩비 정상화") {
		t.Errorf("notice = %v", f.messenger.texts)
	}
	if len(report.Findings) != 1 {
		t.Errorf("findings = %d, want 1", len(report.Findings))
	}
}

func TestRunLeavesUnmetLLMTriggerActive(t *testing.T) {
	f := newPatrolFixture()
	f.triggers.active = []models.UserTrigger{{
		ID: 7, UserID: 1, Kind: models.TriggerLLMEvaluated, Description: "조건", IsActive: true,
	}}

	if _, err := f.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.triggers.retired) != 0 {
		t.Error("unmet trigger must stay active")
	}
	if len(f.messenger.texts) != 0 {
		t.Errorf("unmet scheduled trigger must stay silent, got %v", f.messenger.texts)
	}
}

func TestRunDeferredRequestReportsBothOutcomes(t *testing.T) {
	f := newPatrolFixture()
	f.triggers.deferred = []models.UserTrigger{{
		ID: 9, UserID: 1, Kind: models.TriggerLLMEvaluated,
		Source: models.TriggerSourceUser, Description: "ETH 바닥 신호", IsActive: true,
	}}

	if _, err := f.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.triggers.marked) != 1 || f.triggers.marked[0] != 9 {
		t.Errorf("marked = %v, want the unmet deferred request stamped", f.triggers.marked)
	}
	if len(f.messenger.texts) != 1 || !strings.Contains(f.messenger.texts[0], "아직 조건 미충족") {
		t.Errorf("notice = %v", f.messenger.texts)
	}

	f2 := newPatrolFixture()
	f2.llm.response = "YES"
	f2.triggers.deferred = f.triggers.deferred
	if _, err := f2.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f2.triggers.retired) != 1 {
		t.Error("met deferred request must retire its trigger")
	}
	if len(f2.messenger.texts) != 1 || !strings.Contains(f2.messenger.texts[0], "조건 충족이야") {
		t.Errorf("notice = %v", f2.messenger.texts)
	}
}

func TestRunSearchesWhenTriggerNeedsNews(t *testing.T) {
	f := newPatrolFixture()
	f.search.result = "[1] 관련 뉴스"
	f.triggers.active = []models.UserTrigger{{
		ID: 7, UserID: 1, Kind: models.TriggerLLMEvaluated,
		DataNeeded: models.JSONList{"news"}, Description: "해킹 이슈", IsActive: true,
	}}

	if _, err := f.service.Run(context.Background(), testUser()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.search.calls != 1 {
		t.Errorf("search calls = %d, want 1", f.search.calls)
	}
}

func TestRunRecordsTemperatureTransitions(t *testing.T) {
	f := newPatrolFixture()
	f.streams.hotToWarm = 2
	f.streams.warmToCold = 1

	report, err := f.service.Run(context.Background(), testUser())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.TempChanges == nil {
		t.Fatal("temperature changes missing from the report")
	}
	if len(report.Actions) != 1 {
		t.Errorf("actions = %d, want the transition action", len(report.Actions))
	}
}
