package results_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/results"
)

func setupStore(t *testing.T) (*results.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return results.New(client, time.Hour), mr
}

func TestSetAnswerAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetAnswer(ctx, "chat-1", "msg-1", "the answer"))
	record, err := store.Get(ctx, "chat-1", "msg-1")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, record.Status)
	require.Equal(t, "the answer", record.Answer)
	require.Empty(t, record.Error)
	require.NotZero(t, record.Mtime)
}

func TestSetFailureAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetFailure(ctx, "chat-1", "msg-1", "embedding: boom"))
	record, err := store.Get(ctx, "chat-1", "msg-1")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusFailed, record.Status)
	require.Equal(t, "embedding: boom", record.Error)
	require.Empty(t, record.Answer)
}

func TestGetMissingIsNotFound(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.Get(context.Background(), "chat-1", "nope")
	require.True(t, appErr.IsNotFound(err))
}

func TestRecordsExpire(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetAnswer(ctx, "chat-1", "msg-1", "the answer"))
	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, "chat-1", "msg-1")
	require.True(t, appErr.IsNotFound(err))
}
