package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractSymbols(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"korean with ticker", "BTC 왜 떨어져?", []string{"BTC"}},
		{"english noise filtered", "WHY is SOL and ETH down", []string{"SOL", "ETH"}},
		{"dedup", "BTC BTC ETH", []string{"BTC", "ETH"}},
		{"no tickers", "시장 어때?", nil},
		{"too short or long", "A TOOLONGSYM", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSymbols(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSearchFormatsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"title": "BTC drops on ETF outflows", "url": "https://a.example/1", "content": "outflow details", "score": 0.9},
				{"title": "비트코인 급락 원인", "url": "https://b.example/2", "content": "급락 분석", "score": 0.95},
			},
		})
	}))
	defer server.Close()

	s := &Searcher{client: server.Client(), apiKey: "test", endpoint: server.URL}

	out := s.Search(context.Background(), "BTC 왜 떨어져?")
	if !strings.Contains(out, "[1] 비트코인 급락 원인") {
		t.Errorf("expected highest-score result first, got:\n%s", out)
	}
	if !strings.Contains(out, "출처: https://a.example/1") {
		t.Errorf("expected source line, got:\n%s", out)
	}
}

func TestSearchWithoutKey(t *testing.T) {
	s := NewSearcher("")
	if out := s.Search(context.Background(), "BTC"); out != "검색 결과 없음" {
		t.Errorf("expected empty-result message, got %q", out)
	}
}
