package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const keyPrefix = "answer:"

// Store keeps the terminal result of each message job so callers can poll for
// the answer after the fire-and-forget enqueue. Records expire with a TTL; the
// queue's status hash remains the longer-lived source of job state.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(chatID, messageID string) string {
	return keyPrefix + chatID + "/" + messageID
}

// SetAnswer records a completed job's generated answer.
func (s *Store) SetAnswer(ctx context.Context, chatID, messageID, answer string) error {
	return s.set(ctx, &model.AnswerRecord{
		ChatID:    chatID,
		MessageID: messageID,
		Status:    model.JobStatusCompleted,
		Answer:    answer,
		Mtime:     time.Now().UnixMilli(),
	})
}

// SetFailure records a failed job so pollers see a terminal state instead of
// waiting forever.
func (s *Store) SetFailure(ctx context.Context, chatID, messageID, cause string) error {
	return s.set(ctx, &model.AnswerRecord{
		ChatID:    chatID,
		MessageID: messageID,
		Status:    model.JobStatusFailed,
		Error:     cause,
		Mtime:     time.Now().UnixMilli(),
	})
}

func (s *Store) set(ctx context.Context, record *model.AnswerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode answer record: %w", err)
	}
	if err := s.client.Set(ctx, key(record.ChatID, record.MessageID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save answer record: %w", err)
	}
	return nil
}

// Get returns the stored record, or ErrNotFound when the job has not reached a
// terminal state (or the record expired).
func (s *Store) Get(ctx context.Context, chatID, messageID string) (*model.AnswerRecord, error) {
	data, err := s.client.Get(ctx, key(chatID, messageID)).Bytes()
	if err == redis.Nil {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load answer record: %w", err)
	}
	var record model.AnswerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode answer record: %w", err)
	}
	return &record, nil
}
