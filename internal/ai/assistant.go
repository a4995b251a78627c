package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const systemPersona = `You are a precise and helpful assistant for a retrieval-augmented chat service.
Answer the user's question using the provided context when it is relevant.
If the context does not help, answer from your own knowledge and say so.
Keep answers concise and in the language of the question.`

// Assistant turns a question plus retrieved context into a completion request
// against the configured chat provider. Identical requests within the cache
// window are served from an in-memory LRU.
type Assistant struct {
	provider      IChatProvider
	model         string
	defaultEffort string
	cache         *expirable.LRU[string, string]
}

func NewAssistant(provider IChatProvider, model string, defaultEffort string) *Assistant {
	cache := expirable.NewLRU[string, string](10000, nil, 2*time.Hour)
	return &Assistant{
		provider:      provider,
		model:         model,
		defaultEffort: defaultEffort,
		cache:         cache,
	}
}

// Complete sends the system persona plus a user turn embedding the retrieved
// context and the question. Transport and API errors propagate to the caller;
// retry is the queue's business, not ours.
func (a *Assistant) Complete(ctx context.Context, question, contextText, reasoningEffort string) (string, error) {
	if a.provider == nil {
		return "", ErrUnavailable
	}
	effort := strings.TrimSpace(reasoningEffort)
	if effort == "" {
		effort = a.defaultEffort
	}
	user := buildUserTurn(question, contextText)
	cacheKey := a.cacheKey(user, effort)
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached, nil
	}
	answer, err := a.provider.Complete(ctx, a.model, ChatRequest{
		System:          systemPersona,
		User:            user,
		ReasoningEffort: effort,
	})
	if err != nil {
		return "", err
	}
	a.cache.Add(cacheKey, answer)
	return answer, nil
}

func buildUserTurn(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return fmt.Sprintf("Question:\n%s", question)
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", contextText, question)
}

func (a *Assistant) cacheKey(user, effort string) string {
	hash := sha256.Sum256([]byte(a.model + "\x00" + effort + "\x00" + user))
	return hex.EncodeToString(hash[:])
}
