package retriever

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/model"
)

// ContextSeparator joins ranked context fragments in the final prompt.
const ContextSeparator = "\n---\n"

type SearchStore interface {
	Search(ctx context.Context, vector []float32, limit int, chatID string) ([]model.ScoredChunk, error)
}

// Retriever fetches ranked context for a query vector. The search is scoped to
// the chat; when the chat has no embeddings yet (cold start) it degrades to an
// unscoped global search rather than returning nothing.
type Retriever struct {
	store SearchStore
	topK  int
}

func New(store SearchStore, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{store: store, topK: topK}
}

// Context returns the retrieved chunk texts in ranked order, joined by the
// fixed separator. Scores are logged for observability and then discarded.
func (r *Retriever) Context(ctx context.Context, queryVector []float32, chatID string) (string, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", chatID))
	hits, err := r.store.Search(ctx, queryVector, r.topK, chatID)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		logger.Info("no scoped results, falling back to global search")
		hits, err = r.store.Search(ctx, queryVector, r.topK, "")
		if err != nil {
			return "", err
		}
	}
	if len(hits) == 0 {
		logger.Info("no context found, continuing with empty context")
		return "", nil
	}
	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		logger.Debug("context hit",
			zap.String("source", hit.Source),
			zap.String("message_id", hit.MessageID),
			zap.Int("chunk_index", hit.ChunkIndex),
			zap.Float32("score", hit.Score),
		)
		texts = append(texts, hit.Text)
	}
	return strings.Join(texts, ContextSeparator), nil
}
