package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultEmbedDimension    = 3072
	DefaultTopK              = 5
	DefaultWorkerConcurrency = 5
)

type Config struct {
	Port              int
	GeminiAPIKey      string
	OpenRouterKey     string
	OpenAIKey         string
	HFKey             string
	QdrantURL         string
	QdrantAPIKey      string
	QdrantCollection  string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	EmbedProvider     string
	EmbedModel        string
	ChatProvider      string
	ChatModel         string
	EmbedDimension    int
	TopK              int
	WorkerConcurrency int
	ReasoningEffort   string
	AnswerTTLHours    int
	LogLevel          string
}

// Load reads configuration from the environment, with a best-effort .env load
// first. Required variables abort startup when missing; everything else has a
// sensible default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		OpenRouterKey:     os.Getenv("OPENROUTER_KEY"),
		OpenAIKey:         os.Getenv("OPENAI_KEY"),
		HFKey:             os.Getenv("HF_KEY"),
		QdrantURL:         os.Getenv("QDRANT_URL"),
		QdrantAPIKey:      os.Getenv("QDRANT_API_KEY"),
		QdrantCollection:  getEnv("QDRANT_COLLECTION", "chat-embeddings"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		EmbedProvider:     getEnv("EMBED_PROVIDER", "gemini"),
		EmbedModel:        getEnv("EMBED_MODEL", "gemini-embedding-001"),
		ChatProvider:      getEnv("CHAT_PROVIDER", "openrouter"),
		ChatModel:         getEnv("CHAT_MODEL", "openai/gpt-4o-mini"),
		EmbedDimension:    getEnvInt("EMBED_DIMENSION", DefaultEmbedDimension),
		TopK:              getEnvInt("RETRIEVAL_TOP_K", DefaultTopK),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", DefaultWorkerConcurrency),
		ReasoningEffort:   getEnv("REASONING_EFFORT", "low"),
		AnswerTTLHours:    getEnvInt("ANSWER_TTL_HOURS", 24),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("missing required environment variable: PORT")
	}
	cfg.Port = port

	required := map[string]string{
		"GEMINI_API_KEY": cfg.GeminiAPIKey,
		"OPENROUTER_KEY": cfg.OpenRouterKey,
		"HF_KEY":         cfg.HFKey,
		"QDRANT_URL":     cfg.QdrantURL,
	}
	for key, value := range required {
		if value == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", key)
		}
	}

	if cfg.EmbedDimension <= 0 {
		return nil, fmt.Errorf("EMBED_DIMENSION must be positive")
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = DefaultWorkerConcurrency
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
