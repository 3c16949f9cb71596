package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// Request carries everything for one model call. StaticSystem is the
// prompt prefix that stays byte-identical across calls for the same
// user and gets a cache breakpoint; DynamicSystem is appended after it
// and changes per call.
type Request struct {
	StaticSystem  string
	DynamicSystem string
	Messages      []models.LLMMessage
	MaxTokens     int
	Temperature   *float64
}

// Client is the model gateway. Fast serves judging, patrol screening
// and commentary; Deep serves full conversational analysis.
type Client interface {
	Fast(ctx context.Context, req *Request) (*models.LLMResponse, error)
	Deep(ctx context.Context, req *Request) (*models.LLMResponse, error)
}

// AnthropicClient calls the Anthropic Messages API directly
type AnthropicClient struct {
	apiKey    string
	fastModel string
	deepModel string
	endpoint  string
	client    *http.Client
}

// NewAnthropicClient creates the model gateway from config
func NewAnthropicClient(cfg *config.AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		fastModel: cfg.FastModel,
		deepModel: cfg.DeepModel,
		endpoint:  anthropicAPIURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *AnthropicClient) Fast(ctx context.Context, req *Request) (*models.LLMResponse, error) {
	return c.call(ctx, c.fastModel, req)
}

func (c *AnthropicClient) Deep(ctx context.Context, req *Request) (*models.LLMResponse, error) {
	return c.call(ctx, c.deepModel, req)
}

func (c *AnthropicClient) call(ctx context.Context, model string, req *Request) (*models.LLMResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages in request")
	}

	reqBody := map[string]interface{}{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if req.Temperature != nil {
		reqBody["temperature"] = *req.Temperature
	}

	if system := buildSystemBlocks(req.StaticSystem, req.DynamicSystem); len(system) > 0 {
		reqBody["system"] = system
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	startTime := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(startTime)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no content in response")
	}

	logger.Debug("model response",
		zap.String("model", model),
		zap.Duration("latency", latency),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
		zap.Int("cache_read", result.Usage.CacheReadInputTokens),
	)

	return &models.LLMResponse{
		Text:       text,
		Model:      result.Model,
		StopReason: result.StopReason,
		Usage: models.LLMUsage{
			InputTokens:   result.Usage.InputTokens,
			OutputTokens:  result.Usage.OutputTokens,
			CacheRead:     result.Usage.CacheReadInputTokens,
			CacheCreation: result.Usage.CacheCreationInputTokens,
		},
	}, nil
}

// buildSystemBlocks splits the system prompt into a cacheable static
// block and an uncached dynamic tail
func buildSystemBlocks(static, dynamic string) []map[string]interface{} {
	var blocks []map[string]interface{}
	if static != "" {
		blocks = append(blocks, map[string]interface{}{
			"type":          "text",
			"text":          static,
			"cache_control": map[string]string{"type": "ephemeral"},
		})
	}
	if dynamic != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "text",
			"text": dynamic,
		})
	}
	return blocks
}
