package repository

import (
	"context"

	"github.com/m-mizutani/fabrica/pkg/model"
)

// Repository defines the interface for memory record persistence.
// Records are append-only; implementations must propagate storage failures
// unmodified instead of dropping data.
type Repository interface {
	// PutRecord saves a record to the repository
	PutRecord(ctx context.Context, record *model.MemoryRecord) error

	// GetRecord retrieves a record by ID
	GetRecord(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error)

	// ListRecords retrieves records ordered by creation time, newest first
	ListRecords(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error)

	// ForEachEmbedding streams all persisted (id, embedding) pairs. Used to
	// rebuild the vector index from durable records on startup.
	ForEachEmbedding(ctx context.Context, fn func(id model.RecordID, embedding []float32) error) error

	// Close releases underlying resources
	Close() error
}
