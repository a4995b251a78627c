package ai

import (
	"context"
	"fmt"
)

// Embedder binds an embedding provider to a model and exposes the two call
// modes the pipeline needs: document batches and single queries.
type Embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(provider IEmbedProvider, model string) *Embedder {
	return &Embedder{provider: provider, model: model}
}

func (e *Embedder) ModelName() string {
	return e.model
}

// EmbedDocuments embeds texts for storage. The result has exactly one vector
// per input, in input order; anything else from the provider is an error.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.provider.Embed(ctx, e.model, texts, TaskRetrievalDocument)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.provider.Embed(ctx, e.model, []string{text}, TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}
	return vectors[0], nil
}
