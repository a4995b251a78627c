package model

// AnswerRecord is the terminal result of one message job, kept in the result
// store so the intake caller can poll for it after the fire-and-forget enqueue.
type AnswerRecord struct {
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Status    JobStatus `json:"status"`
	Answer    string    `json:"answer,omitempty"`
	Error     string    `json:"error,omitempty"`
	Mtime     int64     `json:"mtime"`
}
