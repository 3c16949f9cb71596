package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradefork/engine/pkg/models"
)

func TestAnthropicClientCall(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("missing version header")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": "판단: long"}},
			"model":       "fast-model",
			"stop_reason": "end_turn",
			"usage": map[string]int{
				"input_tokens":            120,
				"output_tokens":           30,
				"cache_read_input_tokens": 100,
			},
		})
	}))
	defer server.Close()

	client := &AnthropicClient{
		apiKey:    "test-key",
		fastModel: "fast-model",
		deepModel: "deep-model",
		endpoint:  server.URL,
		client:    &http.Client{Timeout: time.Second},
	}

	resp, err := client.Fast(context.Background(), &Request{
		StaticSystem:  "static persona",
		DynamicSystem: "current market",
		Messages:      []models.LLMMessage{{Role: "user", Content: "BTC 어때?"}},
		MaxTokens:     500,
	})
	if err != nil {
		t.Fatalf("Fast failed: %v", err)
	}

	if resp.Text != "판단: long" {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.CacheRead != 100 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}

	system, ok := gotBody["system"].([]interface{})
	if !ok || len(system) != 2 {
		t.Fatalf("expected 2 system blocks, got %v", gotBody["system"])
	}
	first, _ := system[0].(map[string]interface{})
	if _, hasCache := first["cache_control"]; !hasCache {
		t.Error("expected cache_control on static system block")
	}
	second, _ := system[1].(map[string]interface{})
	if _, hasCache := second["cache_control"]; hasCache {
		t.Error("dynamic system block must not carry cache_control")
	}
}

func TestAnthropicClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	client := &AnthropicClient{
		apiKey:    "test-key",
		fastModel: "fast-model",
		endpoint:  server.URL,
		client:    &http.Client{Timeout: time.Second},
	}

	_, err := client.Fast(context.Background(), &Request{
		Messages: []models.LLMMessage{{Role: "user", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error on 429")
	}
}
