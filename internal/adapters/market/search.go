package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
)

const tavilyURL = "https://api.tavily.com/search"

var symbolPattern = regexp.MustCompile(`\b([A-Z]{2,6})\b`)

// Common English words that match the ticker pattern but are noise
var symbolNoise = map[string]bool{
	"WHY": true, "THE": true, "HOW": true, "WHAT": true, "WHEN": true,
	"AND": true, "FOR": true, "ARE": true, "BUT": true, "NOT": true,
}

// Searcher runs web search for market context. Queries go out in both
// Korean and English so coverage does not depend on the user's
// language; results are merged by URL and ranked by relevance score.
type Searcher struct {
	client   *http.Client
	apiKey   string
	endpoint string
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// NewSearcher creates a Tavily-backed searcher
func NewSearcher(apiKey string) *Searcher {
	return &Searcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		apiKey:   apiKey,
		endpoint: tavilyURL,
	}
}

// ExtractSymbols pulls ticker-like tokens out of a user message,
// dropping common English words
func ExtractSymbols(text string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, match := range symbolPattern.FindAllStringSubmatch(text, -1) {
		sym := match[1]
		if symbolNoise[sym] || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols
}

// Search looks up market context for a user message. The result is a
// formatted text block ready to be embedded in a prompt.
func (s *Searcher) Search(ctx context.Context, message string) string {
	if s.apiKey == "" {
		return "검색 결과 없음"
	}

	symbols := ExtractSymbols(message)
	syms := "BTC"
	if len(symbols) > 0 {
		syms = strings.Join(symbols, " ")
	}

	queries := []string{
		syms + " crypto price analysis why",
		syms + " 코인 분석 이유",
	}

	seen := make(map[string]bool)
	var results []tavilyResult
	for _, query := range queries {
		batch, err := s.query(ctx, query)
		if err != nil {
			logger.Warn("search query failed",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		for _, r := range batch {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			results = append(results, r)
		}
	}

	if len(results) == 0 {
		return "검색 결과 없음"
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > 8 {
		results = results[:8]
	}

	var b strings.Builder
	for i, r := range results {
		content := r.Content
		if runes := []rune(content); len(runes) > 500 {
			content = string(runes[:500])
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n출처: %s\n\n", i+1, r.Title, content, r.URL)
	}
	return strings.TrimSpace(b.String())
}

func (s *Searcher) query(ctx context.Context, query string) ([]tavilyResult, error) {
	payload := map[string]interface{}{
		"api_key":      s.apiKey,
		"query":        query,
		"search_depth": "advanced",
		"max_results":  5,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error (status %d)", resp.StatusCode)
	}

	var out struct {
		Results []tavilyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return out.Results, nil
}
