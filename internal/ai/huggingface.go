package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"

type huggingfaceConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type huggingfaceEmbedProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type huggingfaceEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

func (p *huggingfaceEmbedProvider) Name() string {
	return "huggingface"
}

func (p *huggingfaceEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/%s/pipeline/feature-extraction", strings.TrimRight(p.baseURL, "/"), model)
	data, err := json.Marshal(huggingfaceEmbedRequest{Inputs: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("huggingface request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("huggingface returned %d embeddings for %d texts", len(vectors), len(texts))
	}
	for i, vector := range vectors {
		if len(vector) == 0 {
			return nil, fmt.Errorf("huggingface returned empty embedding at position %d", i)
		}
	}
	return vectors, nil
}

func createHuggingFaceEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &huggingfaceConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	return &huggingfaceEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  http.DefaultClient,
	}, nil
}

func init() {
	RegisterEmbed("huggingface", createHuggingFaceEmbedFactory)
}
