package model

// SourceMessage marks chunks produced from the message body itself; chunks
// produced from an attachment carry the attachment path instead.
const SourceMessage = "message"

// Chunk is a bounded text fragment with provenance metadata, the unit of
// embedding and storage.
type Chunk struct {
	Text       string `json:"text"`
	ChatID     string `json:"chat_id"`
	MessageID  string `json:"message_id"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}

// ScoredChunk is one similarity-search hit.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}
