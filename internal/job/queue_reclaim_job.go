package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/queue"
)

// QueueReclaimJob periodically pushes stalled jobs (active entries whose
// lease expired, usually after a crash) back onto the wait list.
type QueueReclaimJob struct {
	queue *queue.Queue
}

func NewQueueReclaimJob(q *queue.Queue) *QueueReclaimJob {
	return &QueueReclaimJob{queue: q}
}

func (j *QueueReclaimJob) Name() string {
	return "queue_reclaim"
}

func (j *QueueReclaimJob) Run(ctx context.Context) error {
	reclaimed, err := j.queue.ReclaimStalled(ctx)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logutil.GetLogger(ctx).Warn("requeued stalled jobs", zap.Int("count", reclaimed))
	}
	return nil
}
