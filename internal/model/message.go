package model

// MessageFile is an inline attachment sent with a chat message. Content is
// capped at the intake boundary, so a file never exceeds one chunk worth of text.
type MessageFile struct {
	Path        string `json:"path"`
	FileContent string `json:"file_content"`
}

// MessagePayload is the validated body of one chat message job.
type MessagePayload struct {
	Message      string        `json:"message"`
	MessageFiles []MessageFile `json:"message_files,omitempty"`
}

// Job is one unit of asynchronous work pulled from the queue. Name encodes
// source/chatId/messageId, split on "/" by the consumer.
type Job struct {
	Name      string         `json:"name"`
	ChatID    string         `json:"chat_id"`
	MessageID string         `json:"message_id"`
	Payload   MessagePayload `json:"payload"`
}

// JobStatus tracks a job through the queue.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)
