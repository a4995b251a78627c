package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/chunker"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/worker"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	docCalls [][]string
	docErr   error
	queries  []string
	queryErr error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return nil, f.docErr
	}
	f.docCalls = append(f.docCalls, texts)
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queries = append(f.queries, text)
	return []float32{0.5}, nil
}

type fakeVectorStore struct {
	mu          sync.Mutex
	ensureCalls int
	ensureErr   error
	upserts     [][]model.Chunk
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, chunks)
	return nil
}

func (f *fakeVectorStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakeRetriever struct {
	mu      sync.Mutex
	chatIDs []string
	text    string
}

func (f *fakeRetriever) Context(ctx context.Context, queryVector []float32, chatID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatIDs = append(f.chatIDs, chatID)
	return f.text, nil
}

type fakeCompleter struct {
	mu        sync.Mutex
	questions []string
	contexts  []string
	answer    string
}

func (f *fakeCompleter) Complete(ctx context.Context, question, contextText, reasoningEffort string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	f.contexts = append(f.contexts, contextText)
	return f.answer, nil
}

type fakeAnswerStore struct {
	mu       sync.Mutex
	answers  map[string]string
	failures map[string]string
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{answers: map[string]string{}, failures: map[string]string{}}
}

func (f *fakeAnswerStore) SetAnswer(ctx context.Context, chatID, messageID, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[chatID+"/"+messageID] = answer
	return nil
}

func (f *fakeAnswerStore) SetFailure(ctx context.Context, chatID, messageID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[chatID+"/"+messageID] = cause
	return nil
}

type fakeJobQueue struct {
	jobs      chan *model.Job
	mu        sync.Mutex
	completed []string
	failed    map[string]string
	done      chan struct{}
}

func newFakeJobQueue(capacity int) *fakeJobQueue {
	return &fakeJobQueue{
		jobs:   make(chan *model.Job, capacity),
		failed: map[string]string{},
		done:   make(chan struct{}, capacity),
	}
}

func (f *fakeJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, error) {
	select {
	case job := <-f.jobs:
		return job, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeJobQueue) MarkCompleted(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	f.completed = append(f.completed, job.Name)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeJobQueue) MarkFailed(ctx context.Context, job *model.Job, cause string) error {
	f.mu.Lock()
	f.failed[job.Name] = cause
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func testJob(chatID, messageID, message string) *model.Job {
	return &model.Job{
		Name:      "message/" + chatID + "/" + messageID,
		ChatID:    chatID,
		MessageID: messageID,
		Payload:   model.MessagePayload{Message: message},
	}
}

func newTestWorker(t *testing.T, q *fakeJobQueue, emb *fakeEmbedder, store *fakeVectorStore, rtv *fakeRetriever, cmp *fakeCompleter, answers *fakeAnswerStore) *worker.Worker {
	t.Helper()
	w, err := worker.New(q, chunker.New(), emb, store, rtv, cmp, answers, worker.Config{Concurrency: 2, ReasoningEffort: "low"})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestProcessHappyPath(t *testing.T) {
	q := newFakeJobQueue(1)
	emb := &fakeEmbedder{}
	store := &fakeVectorStore{}
	rtv := &fakeRetriever{text: "earlier context"}
	cmp := &fakeCompleter{answer: "because the sky scatters blue light"}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, emb, store, rtv, cmp, answers)

	job := testJob("chat-1", "msg-1", "why is the sky blue?")
	require.NoError(t, w.Process(context.Background(), job))

	require.Len(t, emb.docCalls, 1)
	require.Equal(t, []string{"why is the sky blue?"}, emb.docCalls[0])
	require.Equal(t, 1, store.upsertCount())
	require.Equal(t, "chat-1", store.upserts[0][0].ChatID)
	require.Equal(t, model.SourceMessage, store.upserts[0][0].Source)
	require.Equal(t, []string{"why is the sky blue?"}, emb.queries)
	require.Equal(t, []string{"chat-1"}, rtv.chatIDs)
	require.Equal(t, []string{"why is the sky blue?"}, cmp.questions)
	require.Equal(t, []string{"earlier context"}, cmp.contexts)
	require.Equal(t, "because the sky scatters blue light", answers.answers["chat-1/msg-1"])
}

func TestProcessChunksFilesToo(t *testing.T) {
	q := newFakeJobQueue(1)
	emb := &fakeEmbedder{}
	store := &fakeVectorStore{}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, emb, store, &fakeRetriever{}, &fakeCompleter{answer: "ok"}, answers)

	job := testJob("chat-1", "msg-1", "explain this file")
	job.Payload.MessageFiles = []model.MessageFile{
		{Path: "main.go", FileContent: "package main"},
	}
	require.NoError(t, w.Process(context.Background(), job))

	require.Equal(t, 1, store.upsertCount())
	require.Len(t, store.upserts[0], 2)
	require.Equal(t, model.SourceMessage, store.upserts[0][0].Source)
	require.Equal(t, "main.go", store.upserts[0][1].Source)
}

func TestProcessEmbedFailureStopsPipeline(t *testing.T) {
	q := newFakeJobQueue(1)
	emb := &fakeEmbedder{docErr: errors.New("provider down")}
	store := &fakeVectorStore{}
	rtv := &fakeRetriever{}
	cmp := &fakeCompleter{}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, emb, store, rtv, cmp, answers)

	err := w.Process(context.Background(), testJob("chat-1", "msg-1", "hello"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedding:")
	require.Zero(t, store.upsertCount())
	require.Empty(t, rtv.chatIDs)
	require.Empty(t, cmp.questions)
	require.Empty(t, answers.answers)
}

func TestProcessEnsuresCollectionBeforeFirstUpsert(t *testing.T) {
	q := newFakeJobQueue(1)
	store := &fakeVectorStore{}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, &fakeEmbedder{}, store, &fakeRetriever{}, &fakeCompleter{answer: "ok"}, answers)

	require.False(t, w.Ready())
	require.NoError(t, w.Process(context.Background(), testJob("chat-1", "msg-1", "hello")))
	require.True(t, w.Ready())
	require.Equal(t, 1, store.ensureCalls)

	// once ready, the inline ensure is skipped
	require.NoError(t, w.Process(context.Background(), testJob("chat-1", "msg-2", "again")))
	require.Equal(t, 1, store.ensureCalls)
}

func TestProcessNotReadyWhenEnsureFails(t *testing.T) {
	q := newFakeJobQueue(1)
	store := &fakeVectorStore{ensureErr: errors.New("connection refused")}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, &fakeEmbedder{}, store, &fakeRetriever{}, &fakeCompleter{}, answers)

	err := w.Process(context.Background(), testJob("chat-1", "msg-1", "hello"))
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrNotReady))
	require.False(t, w.Ready())
	require.Zero(t, store.upsertCount())
}

func TestRunProcessesConcurrentJobs(t *testing.T) {
	q := newFakeJobQueue(4)
	emb := &fakeEmbedder{}
	store := &fakeVectorStore{}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, emb, store, &fakeRetriever{}, &fakeCompleter{answer: "ok"}, answers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	q.jobs <- testJob("chat-1", "msg-1", "first question")
	q.jobs <- testJob("chat-2", "msg-2", "second question")

	for i := 0; i < 2; i++ {
		select {
		case <-q.done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs to finish")
		}
	}
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.completed, 2)
	require.Empty(t, q.failed)
	require.Equal(t, "ok", answers.answers["chat-1/msg-1"])
	require.Equal(t, "ok", answers.answers["chat-2/msg-2"])
}

func TestRunRecordsFailureForPollers(t *testing.T) {
	q := newFakeJobQueue(1)
	emb := &fakeEmbedder{docErr: errors.New("provider down")}
	answers := newFakeAnswerStore()
	w := newTestWorker(t, q, emb, &fakeVectorStore{}, &fakeRetriever{}, &fakeCompleter{}, answers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	q.jobs <- testJob("chat-1", "msg-1", "hello")
	select {
	case <-q.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job to finish")
	}
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Contains(t, q.failed["message/chat-1/msg-1"], "embedding:")
	answers.mu.Lock()
	defer answers.mu.Unlock()
	require.Contains(t, answers.failures["chat-1/msg-1"], "embedding:")
}
