package model

import (
	"time"

	"github.com/google/uuid"
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// MemoryRecord represents one stored generation: the prompt, the artifacts it
// produced, and the embedding used for similarity search.
// Records are append-only; there is no update or delete path.
type MemoryRecord struct {
	ID        RecordID
	Prompt    string
	ImagePath string
	ModelPath string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a MemoryRecord with the cosine similarity score it got for
// a particular search query.
type ScoredRecord struct {
	*MemoryRecord
	Score float64
}
