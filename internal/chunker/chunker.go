package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/ragchat/internal/model"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 50
)

// defaultSeparators go from coarse to fine: paragraph, line, sentence, word.
// The empty string means "fall back to a fixed-size rune window".
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits message text and inline attachments into bounded, overlapping
// fragments tagged with provenance metadata. It is a pure transformation.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func New() *Chunker {
	return NewWithSize(DefaultChunkSize, DefaultOverlap)
}

func NewWithSize(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}
	return &Chunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split chunks the message first (source "message"), then each attachment
// independently, restarting chunk indexes at 0 for every source.
func (c *Chunker) Split(payload model.MessagePayload, chatID, messageID string) ([]model.Chunk, error) {
	if strings.TrimSpace(payload.Message) == "" {
		return nil, fmt.Errorf("message is empty, nothing to chunk")
	}
	chunks := c.chunkSource(payload.Message, chatID, messageID, model.SourceMessage)
	for _, file := range payload.MessageFiles {
		if strings.TrimSpace(file.FileContent) == "" {
			continue
		}
		chunks = append(chunks, c.chunkSource(file.FileContent, chatID, messageID, file.Path)...)
	}
	return chunks, nil
}

func (c *Chunker) chunkSource(text, chatID, messageID, source string) []model.Chunk {
	pieces := c.splitText(text)
	chunks := make([]model.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, model.Chunk{
			Text:       piece,
			ChatID:     chatID,
			MessageID:  messageID,
			Source:     source,
			ChunkIndex: i,
		})
	}
	return chunks
}

func (c *Chunker) splitText(text string) []string {
	return c.splitRecursive(text, c.separators)
}

// splitRecursive splits on the coarsest separator present, recursing with the
// finer separators for any part that still exceeds the chunk size.
func (c *Chunker) splitRecursive(text string, separators []string) []string {
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return nil
	}
	if length <= c.chunkSize {
		return []string{text}
	}

	separator := ""
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}
	if separator == "" {
		return c.windowSplit(text)
	}

	var chunks []string
	var pending []string
	for _, part := range strings.SplitAfter(text, separator) {
		if utf8.RuneCountInString(part) <= c.chunkSize {
			pending = append(pending, part)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending)...)
			pending = nil
		}
		chunks = append(chunks, c.splitRecursive(part, finer)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending)...)
	}
	return chunks
}

// merge packs separator-delimited parts into chunks up to the size cap,
// carrying a tail of at most `overlap` runes into the next chunk.
func (c *Chunker) merge(parts []string) []string {
	var chunks []string
	var current []string
	currentLen := 0
	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		if currentLen > 0 && currentLen+partLen > c.chunkSize {
			chunks = append(chunks, strings.Join(current, ""))
			var keep []string
			keepLen := 0
			for i := len(current) - 1; i >= 0; i-- {
				l := utf8.RuneCountInString(current[i])
				if keepLen+l > c.overlap {
					break
				}
				keep = append([]string{current[i]}, keep...)
				keepLen += l
			}
			current = keep
			currentLen = keepLen
		}
		current = append(current, part)
		currentLen += partLen
		for currentLen > c.chunkSize && len(current) > 1 {
			currentLen -= utf8.RuneCountInString(current[0])
			current = current[1:]
		}
	}
	if currentLen > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}
	return chunks
}

// windowSplit is the last-resort character split: fixed-size rune windows
// stepping by chunkSize-overlap.
func (c *Chunker) windowSplit(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.chunkSize - c.overlap
	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
