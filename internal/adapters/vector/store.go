package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

const embeddingDimension = 1024

// Match is one semantic search hit
type Match struct {
	ID       string
	Score    float64
	Metadata models.JSONMap
}

// Store is the episode memory index. Every operation is best-effort
// from the caller's point of view: episode writes to Postgres succeed
// even when the index is down.
type Store interface {
	UpsertEpisode(ctx context.Context, externalUserID, episodeID int64, text string, metadata models.JSONMap) error
	Query(ctx context.Context, externalUserID int64, text string, topK int) ([]Match, error)
	DeleteEpisodes(ctx context.Context, externalUserID int64, episodeIDs []int64) error
}

// PineconeStore embeds with OpenAI and indexes into a
// Pinecone-compatible HTTP endpoint, one namespace per user
type PineconeStore struct {
	openaiClient *openai.Client
	indexHost    string
	apiKey       string
	client       *http.Client
}

// NewPineconeStore creates the vector store from config
func NewPineconeStore(cfg *config.PineconeConfig, openaiClient *openai.Client) *PineconeStore {
	return &PineconeStore{
		openaiClient: openaiClient,
		indexHost:    strings.TrimSuffix(cfg.IndexHost, "/"),
		apiKey:       cfg.APIKey,
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

// VectorID formats the canonical vector ID for an episode
func VectorID(episodeID int64) string {
	return fmt.Sprintf("ep_%d", episodeID)
}

// Namespace formats the per-user namespace
func Namespace(externalUserID int64) string {
	return fmt.Sprintf("user_%d", externalUserID)
}

func (s *PineconeStore) UpsertEpisode(ctx context.Context, externalUserID, episodeID int64, text string, metadata models.JSONMap) error {
	values, err := s.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed episode %d: %w", episodeID, err)
	}

	payload := map[string]interface{}{
		"namespace": Namespace(externalUserID),
		"vectors": []map[string]interface{}{
			{
				"id":       VectorID(episodeID),
				"values":   values,
				"metadata": metadata,
			},
		},
	}

	if err := s.post(ctx, "/vectors/upsert", payload, nil); err != nil {
		return fmt.Errorf("failed to upsert episode %d: %w", episodeID, err)
	}

	logger.Debug("episode indexed",
		zap.Int64("episode_id", episodeID),
		zap.String("namespace", Namespace(externalUserID)),
	)

	return nil
}

func (s *PineconeStore) Query(ctx context.Context, externalUserID int64, text string, topK int) ([]Match, error) {
	values, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	payload := map[string]interface{}{
		"namespace":       Namespace(externalUserID),
		"vector":          values,
		"topK":            topK,
		"includeMetadata": true,
	}

	var result struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata models.JSONMap `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "/query", payload, &result); err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	matches := make([]Match, len(result.Matches))
	for i, m := range result.Matches {
		matches[i] = Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

func (s *PineconeStore) DeleteEpisodes(ctx context.Context, externalUserID int64, episodeIDs []int64) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	ids := make([]string, len(episodeIDs))
	for i, id := range episodeIDs {
		ids[i] = VectorID(id)
	}

	payload := map[string]interface{}{
		"namespace": Namespace(externalUserID),
		"ids":       ids,
	}

	if err := s.post(ctx, "/vectors/delete", payload, nil); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// embed generates a 1024-dim embedding with retry and backoff
func (s *PineconeStore) embed(ctx context.Context, text string) ([]float32, error) {
	if s.openaiClient == nil {
		return nil, fmt.Errorf("embedding client not configured")
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}

		resp, err := s.openaiClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      openai.SmallEmbedding3,
			Input:      []string{text},
			Dimensions: embeddingDimension,
		})
		if err == nil {
			if len(resp.Data) == 0 {
				return nil, fmt.Errorf("no embedding data returned")
			}
			return resp.Data[0].Embedding, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}

		logger.Warn("retryable embedding error",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *PineconeStore) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.indexHost+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("index error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503") {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	return false
}
