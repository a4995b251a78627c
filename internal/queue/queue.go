package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const (
	// DefaultName matches the queue the original service consumed.
	DefaultName = "text-embedding-queue"

	defaultLeaseTTL = 5 * time.Minute
)

// Queue is a durable, at-least-once FIFO work queue on Redis. New jobs are
// pushed to a wait list; consumers atomically move them to an active list and
// take a lease. Jobs whose lease expired without an ack are pushed back to the
// wait list by ReclaimStalled, which is what makes delivery at-least-once.
type Queue struct {
	client   *redis.Client
	name     string
	leaseTTL time.Duration
}

func New(client *redis.Client, name string) *Queue {
	if name == "" {
		name = DefaultName
	}
	return &Queue{client: client, name: name, leaseTTL: defaultLeaseTTL}
}

// JobName builds the wire name `message/{chatId}/{messageId}`.
func JobName(chatID, messageID string) string {
	return fmt.Sprintf("message/%s/%s", chatID, messageID)
}

// ParseJobName recovers chatId (second segment) and messageId (third segment).
func ParseJobName(name string) (string, string, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed job name: %q", name)
	}
	return parts[1], parts[2], nil
}

func (q *Queue) waitKey() string {
	return q.name + ":wait"
}

func (q *Queue) activeKey() string {
	return q.name + ":active"
}

func (q *Queue) jobKey(name string) string {
	return q.name + ":job:" + name
}

func (q *Queue) leaseKey(name string) string {
	return q.name + ":lease:" + name
}

func encodeJob(job *model.Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Enqueue records the job status hash and pushes the job onto the wait list.
func (q *Queue) Enqueue(ctx context.Context, chatID, messageID string, payload model.MessagePayload) (*model.Job, error) {
	job := &model.Job{
		Name:      JobName(chatID, messageID),
		ChatID:    chatID,
		MessageID: messageID,
		Payload:   payload,
	}
	raw, err := encodeJob(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.Name),
		"status", string(model.JobStatusWaiting),
		"enqueued_at", time.Now().UnixMilli(),
	)
	pipe.LPush(ctx, q.waitKey(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	logutil.GetLogger(ctx).Info("job enqueued",
		zap.String("job", job.Name),
		zap.Int("files", len(payload.MessageFiles)),
	)
	return job, nil
}

// Dequeue blocks up to timeout for the next job, moving it to the active list
// and taking a lease. Returns (nil, nil) when the timeout elapses empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, error) {
	raw, err := q.client.BRPopLPush(ctx, q.waitKey(), q.activeKey(), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Poison entry: drop it so it cannot wedge the queue.
		q.client.LRem(ctx, q.activeKey(), 1, raw)
		return nil, fmt.Errorf("decode job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.Name),
		"status", string(model.JobStatusActive),
		"started_at", time.Now().UnixMilli(),
	)
	pipe.Set(ctx, q.leaseKey(job.Name), "1", q.leaseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}
	return &job, nil
}

// MarkCompleted acks the job: removes it from the active list, releases the
// lease and records the terminal status.
func (q *Queue) MarkCompleted(ctx context.Context, job *model.Job) error {
	return q.finish(ctx, job, model.JobStatusCompleted, "")
}

// MarkFailed acks the job as failed. No automatic retry follows: failures are
// terminal at this layer.
func (q *Queue) MarkFailed(ctx context.Context, job *model.Job, cause string) error {
	return q.finish(ctx, job, model.JobStatusFailed, cause)
}

func (q *Queue) finish(ctx context.Context, job *model.Job, status model.JobStatus, cause string) error {
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, raw)
	pipe.Del(ctx, q.leaseKey(job.Name))
	fields := []interface{}{
		"status", string(status),
		"finished_at", time.Now().UnixMilli(),
	}
	if cause != "" {
		fields = append(fields, "error", cause)
	}
	pipe.HSet(ctx, q.jobKey(job.Name), fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// Status reports the queue-tracked state of a job.
func (q *Queue) Status(ctx context.Context, name string) (model.JobStatus, string, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(name)).Result()
	if err != nil {
		return "", "", fmt.Errorf("job status: %w", err)
	}
	if len(fields) == 0 {
		return "", "", appErr.ErrNotFound
	}
	return model.JobStatus(fields["status"]), fields["error"], nil
}

// ReclaimStalled pushes active jobs whose lease expired back onto the wait
// list. Returns the number of jobs reclaimed.
func (q *Queue) ReclaimStalled(ctx context.Context) (int, error) {
	entries, err := q.client.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan active jobs: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	reclaimed := 0
	for _, raw := range entries {
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.client.LRem(ctx, q.activeKey(), 1, raw)
			continue
		}
		alive, err := q.client.Exists(ctx, q.leaseKey(job.Name)).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("check lease: %w", err)
		}
		if alive > 0 {
			continue
		}
		removed, err := q.client.LRem(ctx, q.activeKey(), 1, raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.jobKey(job.Name), "status", string(model.JobStatusWaiting))
		pipe.LPush(ctx, q.waitKey(), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, fmt.Errorf("requeue stalled job: %w", err)
		}
		logger.Warn("stalled job reclaimed", zap.String("job", job.Name))
		reclaimed++
	}
	return reclaimed, nil
}
