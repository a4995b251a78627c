package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/chunker"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
}

type ContextProvider interface {
	Context(ctx context.Context, queryVector []float32, chatID string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, question, contextText, reasoningEffort string) (string, error)
}

type AnswerStore interface {
	SetAnswer(ctx context.Context, chatID, messageID, answer string) error
	SetFailure(ctx context.Context, chatID, messageID, cause string) error
}

type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, error)
	MarkCompleted(ctx context.Context, job *model.Job) error
	MarkFailed(ctx context.Context, job *model.Job, cause string) error
}

type Config struct {
	Concurrency     int
	ReasoningEffort string
}

// Worker is the single logical consumer of the job queue. One loop pulls jobs
// and hands them to a bounded pool, so up to Concurrency jobs are in flight at
// once while each job's pipeline stays strictly sequential.
type Worker struct {
	queue     JobQueue
	chunker   *chunker.Chunker
	embedder  Embedder
	store     VectorStore
	retriever ContextProvider
	assistant Completer
	answers   AnswerStore
	effort    string
	pool      *ants.Pool
	ready     atomic.Bool
}

func New(
	queue JobQueue,
	ck *chunker.Chunker,
	embedder Embedder,
	store VectorStore,
	retriever ContextProvider,
	assistant Completer,
	answers AnswerStore,
	cfg Config,
) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Worker{
		queue:     queue,
		chunker:   ck,
		embedder:  embedder,
		store:     store,
		retriever: retriever,
		assistant: assistant,
		answers:   answers,
		effort:    cfg.ReasoningEffort,
		pool:      pool,
	}, nil
}

// Ready reports whether the vector collection bootstrap has succeeded.
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// Run bootstraps the collection in the background and consumes jobs until ctx
// is cancelled. Pool submission blocks when all slots are busy, which is the
// backpressure that bounds in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	go w.bootstrap(ctx)

	logger := logutil.GetLogger(ctx)
	logger.Info("worker started", zap.Int("concurrency", w.pool.Cap()))
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		// Once a job starts it runs to completion or failure; shutdown does
		// not cancel in-flight pipelines.
		jobCtx := context.WithoutCancel(ctx)
		current := job
		if err := w.pool.Submit(func() {
			w.handle(jobCtx, current)
		}); err != nil {
			logger.Error("submit job to pool failed", zap.String("job", current.Name), zap.Error(err))
			_ = w.queue.MarkFailed(jobCtx, current, err.Error())
		}
	}
}

// Close releases the worker pool, waiting for in-flight jobs.
func (w *Worker) Close() {
	w.pool.Release()
}

// bootstrap ensures the collection exists. Failures are logged, never fatal:
// transient vector-store unavailability at boot must not crash the worker.
// Jobs check Ready() and re-attempt the ensure before their first upsert.
func (w *Worker) bootstrap(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	for {
		err := w.store.EnsureCollection(ctx)
		if err == nil {
			w.ready.Store(true)
			logger.Info("vector collection ready")
			return
		}
		logger.Error("collection bootstrap failed, will retry", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *model.Job) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", job.Name),
		zap.String("chat_id", job.ChatID),
		zap.String("message_id", job.MessageID),
	)
	start := time.Now()
	logger.Info("job received")
	if err := w.Process(ctx, job); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		if serr := w.answers.SetFailure(ctx, job.ChatID, job.MessageID, err.Error()); serr != nil {
			logger.Error("record failure failed", zap.Error(serr))
		}
		if qerr := w.queue.MarkFailed(ctx, job, err.Error()); qerr != nil {
			logger.Error("mark job failed failed", zap.Error(qerr))
		}
		return
	}
	logger.Info("job completed", zap.Duration("duration", time.Since(start)))
	if err := w.queue.MarkCompleted(ctx, job); err != nil {
		logger.Error("mark job completed failed", zap.Error(err))
	}
}

// Process runs one job's pipeline: chunk, embed, upsert, embed the query,
// retrieve context, complete. Stages are strictly sequential; the first error
// aborts the job. Chunks already upserted by a failed job are left in place,
// their deterministic point ids make a replay overwrite them.
func (w *Worker) Process(ctx context.Context, job *model.Job) error {
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name))

	logger.Debug("stage: chunking")
	chunks, err := w.chunker.Split(job.Payload, job.ChatID, job.MessageID)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	logger.Info("message chunked", zap.Int("chunks", len(chunks)))

	logger.Debug("stage: embedding")
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	vectors, err := w.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	logger.Debug("stage: upserting")
	if !w.Ready() {
		// Bootstrap has not confirmed the collection yet; try once inline
		// rather than upserting into the void.
		if err := w.store.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("upserting: %w: %v", appErr.ErrNotReady, err)
		}
		w.ready.Store(true)
	}
	if err := w.store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("upserting: %w", err)
	}

	logger.Debug("stage: embedding-query")
	queryVector, err := w.embedder.EmbedQuery(ctx, job.Payload.Message)
	if err != nil {
		return fmt.Errorf("embedding-query: %w", err)
	}

	logger.Debug("stage: retrieving")
	contextText, err := w.retriever.Context(ctx, queryVector, job.ChatID)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	logger.Debug("stage: completing")
	answer, err := w.assistant.Complete(ctx, job.Payload.Message, contextText, w.effort)
	if err != nil {
		return fmt.Errorf("completing: %w", err)
	}
	if err := w.answers.SetAnswer(ctx, job.ChatID, job.MessageID, answer); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	logger.Info("answer generated", zap.Int("answer_chars", len(answer)))
	return nil
}
