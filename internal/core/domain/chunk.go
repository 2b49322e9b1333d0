package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SourceType distinguishes how a chunk entered the store.
type SourceType string

// Known source types.
const (
	// SourceTypeDocument marks chunks produced by ingesting a file.
	SourceTypeDocument SourceType = "document"

	// SourceTypeConversational marks facts remembered from a conversation.
	SourceTypeConversational SourceType = "conversational"
)

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	return t == SourceTypeDocument || t == SourceTypeConversational
}

// ConversationSource is the source label used for remembered facts.
const ConversationSource = "conversation"

// Chunk is a piece of text stored in the vector store.
// Chunks are immutable once stored.
type Chunk struct {
	// Content is the text of the chunk.
	Content string `json:"content"`

	// Source identifies where the chunk came from (file name or "conversation").
	Source string `json:"source"`

	// SourceType is document or conversational.
	SourceType SourceType `json:"source_type"`

	// SequenceIndex is the chunk position within its source.
	SequenceIndex int `json:"sequence_index"`

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time `json:"created_at"`

	// Metadata holds free-form string attributes.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Score is the relevance Search reported for this chunk. It is zero
	// outside search results and is not part of the chunk's identity.
	Score float64 `json:"-"`
}

// Key returns the identity of the chunk.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{
		Content:       c.Content,
		Source:        c.Source,
		SequenceIndex: c.SequenceIndex,
	}
}

// ID returns the stable store identifier of the chunk.
func (c Chunk) ID() string {
	return c.Key().ID()
}

// ChunkKey is the identity of a chunk: two chunks with equal keys are the same chunk.
type ChunkKey struct {
	Content       string
	Source        string
	SequenceIndex int
}

// ID returns a stable hex digest of the key.
func (k ChunkKey) ID() string {
	h := sha256.New()
	h.Write([]byte(k.Source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.SequenceIndex)))
	h.Write([]byte{0})
	h.Write([]byte(k.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkFilter restricts searches and deletions to matching chunks.
// Zero-valued fields match everything.
type ChunkFilter struct {
	Source     string     `json:"source,omitempty"`
	SourceType SourceType `json:"source_type,omitempty"`
}

// IsEmpty returns true if the filter matches every chunk.
func (f ChunkFilter) IsEmpty() bool {
	return f.Source == "" && f.SourceType == ""
}

// Matches reports whether the chunk satisfies the filter.
func (f ChunkFilter) Matches(c Chunk) bool {
	if f.Source != "" && f.Source != c.Source {
		return false
	}
	if f.SourceType != "" && f.SourceType != c.SourceType {
		return false
	}
	return true
}

// DedupChunks removes chunks with duplicate keys, keeping the first occurrence.
func DedupChunks(chunks []Chunk) []Chunk {
	seen := make(map[ChunkKey]struct{}, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
