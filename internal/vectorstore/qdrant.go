package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/model"
)

// Namespace for deterministic point ids. A point id is a UUIDv5 of
// chatId:messageId:source:chunkIndex, so replaying a job overwrites its own
// rows and can never clobber another job's.
var pointNamespace = uuid.MustParse("8f3c1d46-9b1e-4a7d-b24e-5f0a6d7c9e21")

type Config struct {
	BaseURL    string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// QdrantStore talks to Qdrant's HTTP API: one named collection with a fixed
// dimension and cosine distance.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func NewQdrantStore(cfg Config) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *QdrantStore) Collection() string {
	return s.collection
}

// EnsureCollection checks existence by name and creates the collection only if
// absent. A concurrent "already exists" race is treated as success.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", s.collection))
	status, _, err := s.doJSON(ctx, http.MethodGet, s.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if status == http.StatusOK {
		logger.Debug("collection already present")
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("check collection: unexpected status %d", status)
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	status, respBody, err := s.doJSON(ctx, http.MethodPut, s.collectionURL(), body)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if status == http.StatusConflict || strings.Contains(strings.ToLower(string(respBody)), "already exists") {
		logger.Info("collection created concurrently by another process")
		return nil
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("create collection: status %d: %s", status, strings.TrimSpace(string(respBody)))
	}
	logger.Info("collection created", zap.Int("dimension", s.dimension))
	return nil
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// Upsert stores each chunk's text and metadata alongside its vector. Calls are
// independent: there is no transactional batching across calls.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]qdrantPoint, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, qdrantPoint{
			ID:     PointID(chunk),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"text":       chunk.Text,
				"chatId":     chunk.ChatID,
				"messageId":  chunk.MessageID,
				"source":     chunk.Source,
				"chunkIndex": chunk.ChunkIndex,
			},
		})
	}
	url := s.collectionURL() + "/points?wait=true"
	status, respBody, err := s.doJSON(ctx, http.MethodPut, url, map[string]interface{}{"points": points})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("upsert points: status %d: %s", status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float32                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// Search returns the top-k nearest points by cosine similarity. A non-empty
// chatID restricts results to that chat via a payload equality filter.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, chatID string) ([]model.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if chatID != "" {
		req["filter"] = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "chatId", "match": map[string]interface{}{"value": chatID}},
			},
		}
	}
	url := s.collectionURL() + "/points/search"
	status, respBody, err := s.doJSON(ctx, http.MethodPost, url, req)
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("search points: status %d: %s", status, strings.TrimSpace(string(respBody)))
	}
	var out qdrantSearchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]model.ScoredChunk, 0, len(out.Result))
	for _, hit := range out.Result {
		item := model.ScoredChunk{Score: hit.Score}
		if v, ok := hit.Payload["text"].(string); ok {
			item.Text = v
		}
		if v, ok := hit.Payload["chatId"].(string); ok {
			item.ChatID = v
		}
		if v, ok := hit.Payload["messageId"].(string); ok {
			item.MessageID = v
		}
		if v, ok := hit.Payload["source"].(string); ok {
			item.Source = v
		}
		if v, ok := hit.Payload["chunkIndex"].(float64); ok {
			item.ChunkIndex = int(v)
		}
		results = append(results, item)
	}
	return results, nil
}

// PointID derives the deterministic point id for a chunk.
func PointID(chunk model.Chunk) string {
	key := fmt.Sprintf("%s:%s:%s:%d", chunk.ChatID, chunk.MessageID, chunk.Source, chunk.ChunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (s *QdrantStore) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
}

func (s *QdrantStore) doJSON(ctx context.Context, method, url string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
