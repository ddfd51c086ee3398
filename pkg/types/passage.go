package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// passageSeparator joins a file hash and a chunk index in a passage ID.
const passageSeparator = "::chunk"

// PassageID returns the stable identifier for chunk index of a file generation.
func PassageID(fileHash string, index int) string {
	return fmt.Sprintf("%s%s%d", fileHash, passageSeparator, index)
}

// ParsePassageID splits a passage ID into its file hash and chunk index.
func ParsePassageID(id string) (string, int, error) {
	pos := strings.LastIndex(id, passageSeparator)
	if pos <= 0 {
		return "", 0, fmt.Errorf("malformed passage id %q", id)
	}
	index, err := strconv.Atoi(id[pos+len(passageSeparator):])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed passage id %q", id)
	}
	return id[:pos], index, nil
}

// Metadata is attached to every stored passage.
type Metadata struct {
	File       string    `json:"file"`
	FileHash   string    `json:"file_hash"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	ModifiedAt time.Time `json:"modified_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields a vector index relies on.
func (m *Metadata) Validate() error {
	if m.File == "" {
		return NewValidationError("file", "file path is required")
	}
	if m.FileHash == "" {
		return NewValidationError("file_hash", "file hash is required")
	}
	if m.ChunkIndex < 0 {
		return NewValidationError("chunk_index", "must be >= 0, got %d", m.ChunkIndex)
	}
	return nil
}

// TimeValue returns the timestamp selected by field.
func (m *Metadata) TimeValue(field TimeField) time.Time {
	if field == TimeFieldModified {
		return m.ModifiedAt
	}
	return m.CreatedAt
}

// ContextChunk is a passage returned by a similarity query.
type ContextChunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Metadata *Metadata `json:"metadata"`
	Distance *float64  `json:"distance"`
}

// QueryResult is an answer plus the passages retrieved to ground it.
type QueryResult struct {
	Answer  string         `json:"answer"`
	Context []ContextChunk `json:"context"`
}
