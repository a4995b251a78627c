package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/handler"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type fakeEnqueuer struct {
	jobs     []*model.Job
	status   model.JobStatus
	cause    string
	statuses []string
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, chatID, messageID string, payload model.MessagePayload) (*model.Job, error) {
	job := &model.Job{
		Name:      "message/" + chatID + "/" + messageID,
		ChatID:    chatID,
		MessageID: messageID,
		Payload:   payload,
	}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *fakeEnqueuer) Status(ctx context.Context, name string) (model.JobStatus, string, error) {
	f.statuses = append(f.statuses, name)
	if f.status == "" {
		return "", "", appErr.ErrNotFound
	}
	return f.status, f.cause, nil
}

type fakeAnswerGetter struct {
	record *model.AnswerRecord
}

func (f *fakeAnswerGetter) Get(ctx context.Context, chatID, messageID string) (*model.AnswerRecord, error) {
	if f.record == nil {
		return nil, appErr.ErrNotFound
	}
	return f.record, nil
}

func setupRouter(enqueuer *fakeEnqueuer, answers *fakeAnswerGetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api/v1")
	handler.RegisterRoutes(api, handler.RouterDeps{
		Messages: handler.NewMessageHandler(enqueuer, answers),
	})
	return engine
}

func postMessage(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestPostMessageEnqueues(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	engine := setupRouter(enqueuer, &fakeAnswerGetter{})

	rec := postMessage(t, engine, `{"chatId":"chat-1","message":"why is the sky blue?","messageFiles":[{"path":"notes.md","fileContent":"stuff"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, enqueuer.jobs, 1)
	require.Equal(t, "chat-1", enqueuer.jobs[0].ChatID)
	require.NotEmpty(t, enqueuer.jobs[0].MessageID)
	require.Equal(t, "why is the sky blue?", enqueuer.jobs[0].Payload.Message)
	require.Len(t, enqueuer.jobs[0].Payload.MessageFiles, 1)
	require.Contains(t, rec.Body.String(), enqueuer.jobs[0].MessageID)
	require.Contains(t, rec.Body.String(), string(model.JobStatusWaiting))
}

func TestPostMessageGeneratesChatID(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	engine := setupRouter(enqueuer, &fakeAnswerGetter{})

	rec := postMessage(t, engine, `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, enqueuer.jobs, 1)
	require.NotEmpty(t, enqueuer.jobs[0].ChatID)
	require.Contains(t, rec.Body.String(), enqueuer.jobs[0].ChatID)
}

func TestPostMessageRejectsInvalidPayloads(t *testing.T) {
	longText := strings.Repeat("x", 1001)
	cases := map[string]string{
		"empty body":        `{}`,
		"blank message":     `{"message":""}`,
		"oversized message": `{"message":"` + longText + `"}`,
		"file without path": `{"message":"hi","messageFiles":[{"path":" ","fileContent":"x"}]}`,
		"oversized file":    `{"message":"hi","messageFiles":[{"path":"a.txt","fileContent":"` + longText + `"}]}`,
		"not json":          `{nope`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			enqueuer := &fakeEnqueuer{}
			engine := setupRouter(enqueuer, &fakeAnswerGetter{})
			postMessage(t, engine, body)
			require.Empty(t, enqueuer.jobs, "invalid payload must not be enqueued")
		})
	}
}

func TestAnswerReturnsTerminalRecord(t *testing.T) {
	answers := &fakeAnswerGetter{record: &model.AnswerRecord{
		ChatID:    "chat-1",
		MessageID: "msg-1",
		Status:    model.JobStatusCompleted,
		Answer:    "blue light scatters",
	}}
	engine := setupRouter(&fakeEnqueuer{}, answers)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/chat-1/messages/msg-1/answer", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "blue light scatters")
}

func TestAnswerFallsBackToQueueStatus(t *testing.T) {
	enqueuer := &fakeEnqueuer{status: model.JobStatusActive}
	engine := setupRouter(enqueuer, &fakeAnswerGetter{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/chat-1/messages/msg-1/answer", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"message/chat-1/msg-1"}, enqueuer.statuses)
	require.Contains(t, rec.Body.String(), string(model.JobStatusActive))
}
