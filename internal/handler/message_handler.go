package handler

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/queue"
)

const (
	maxMessageChars     = 1000
	maxFileContentChars = 1000
)

type Enqueuer interface {
	Enqueue(ctx context.Context, chatID, messageID string, payload model.MessagePayload) (*model.Job, error)
	Status(ctx context.Context, name string) (model.JobStatus, string, error)
}

type AnswerGetter interface {
	Get(ctx context.Context, chatID, messageID string) (*model.AnswerRecord, error)
}

// MessageHandler is the intake boundary: it validates the payload shape,
// enqueues a job and returns without waiting for processing.
type MessageHandler struct {
	queue   Enqueuer
	answers AnswerGetter
}

func NewMessageHandler(queue Enqueuer, answers AnswerGetter) *MessageHandler {
	return &MessageHandler{queue: queue, answers: answers}
}

type messageFileRequest struct {
	Path        string `json:"path"`
	FileContent string `json:"fileContent"`
}

type postMessageRequest struct {
	ChatID       string               `json:"chatId"`
	Message      string               `json:"message"`
	MessageFiles []messageFileRequest `json:"messageFiles"`
}

func (r *postMessageRequest) validate() error {
	if r.Message == "" || utf8.RuneCountInString(r.Message) > maxMessageChars {
		return appErr.ErrInvalid
	}
	for _, file := range r.MessageFiles {
		if strings.TrimSpace(file.Path) == "" {
			return appErr.ErrInvalid
		}
		if utf8.RuneCountInString(file.FileContent) > maxFileContentChars {
			return appErr.ErrInvalid
		}
	}
	return nil
}

// Post validates and enqueues one chat message. Fire-and-forget: the response
// carries the ids to poll the answer with, never the answer itself.
func (h *MessageHandler) Post(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "please provide complete message info")
		return
	}
	if err := req.validate(); err != nil {
		response.Error(c, errcode.ErrInvalid, "please provide complete message info")
		return
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		chatID = uuid.NewString()
	}
	messageID := uuid.NewString()

	payload := model.MessagePayload{Message: req.Message}
	for _, file := range req.MessageFiles {
		payload.MessageFiles = append(payload.MessageFiles, model.MessageFile{
			Path:        file.Path,
			FileContent: file.FileContent,
		})
	}
	if _, err := h.queue.Enqueue(c.Request.Context(), chatID, messageID, payload); err != nil {
		response.Error(c, errcode.ErrEnqueueFailed, "failed to enqueue message")
		return
	}
	response.Success(c, gin.H{
		"chatId":    chatID,
		"messageId": messageID,
		"status":    string(model.JobStatusWaiting),
	})
}

// Answer reports the terminal answer for a message, or the queue-tracked
// status while the job is still in flight.
func (h *MessageHandler) Answer(c *gin.Context) {
	chatID := c.Param("chatId")
	messageID := c.Param("messageId")
	record, err := h.answers.Get(c.Request.Context(), chatID, messageID)
	if err == nil {
		response.Success(c, record)
		return
	}
	if !appErr.IsNotFound(err) {
		handleError(c, err)
		return
	}
	status, _, err := h.queue.Status(c.Request.Context(), queue.JobName(chatID, messageID))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"chatId":    chatID,
		"messageId": messageID,
		"status":    string(status),
	})
}
