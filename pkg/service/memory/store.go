package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/repository"
	"github.com/m-mizutani/fabrica/pkg/service/vector"
	"github.com/m-mizutani/fabrica/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Store is the durable memory of past generations. It keeps every record in
// the repository and mirrors each embedding into the vector index so that
// similar prompts can be found later.
//
// Writes go to the repository first and the index second. The index is
// rebuilt from the repository on startup, so a crash between the two writes
// can never leave an index entry without a backing record.
type Store struct {
	repo  repository.Repository
	index *vector.Index

	// serializes Add so concurrent inserts keep the record/index pair intact
	writeMu sync.Mutex
}

// New creates a Store and rebuilds the vector index from persisted records.
func New(ctx context.Context, repo repository.Repository) (*Store, error) {
	index := vector.New()

	if err := repo.ForEachEmbedding(ctx, func(id model.RecordID, embedding []float32) error {
		if err := index.Insert(id, embedding); err != nil {
			// A bad persisted vector must not brick startup
			logging.From(ctx).Warn("skipping unindexable embedding", "record_id", id, "error", err)
		}
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to rebuild vector index")
	}

	logging.From(ctx).Debug("memory store ready", "indexed", index.Len())

	return &Store{
		repo:  repo,
		index: index,
	}, nil
}

// Add persists a new memory record and indexes its embedding. The embedding
// may be empty, in which case the record is stored but not searchable.
func (s *Store) Add(ctx context.Context, prompt, imagePath, modelPath string, embedding []float32) (model.RecordID, error) {
	if prompt == "" {
		return "", goerr.Wrap(model.ErrEmptyPrompt, "memory record requires prompt text")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Reject a mismatched embedding before anything is persisted, so the
	// record/index invariant holds even for caller bugs.
	if len(embedding) > 0 {
		if dim := s.index.Dimension(); dim != 0 && len(embedding) != dim {
			return "", goerr.Wrap(model.ErrDimensionMismatch, "embedding does not match index dimension",
				goerr.V("expected", dim),
				goerr.V("actual", len(embedding)),
			)
		}
	}

	record := &model.MemoryRecord{
		ID:        model.NewRecordID(),
		Prompt:    prompt,
		ImagePath: imagePath,
		ModelPath: modelPath,
		Embedding: embedding,
		CreatedAt: time.Now(),
	}

	if err := s.repo.PutRecord(ctx, record); err != nil {
		return "", err
	}

	if len(embedding) > 0 {
		if err := s.index.Insert(record.ID, embedding); err != nil {
			return "", err
		}
	}

	return record.ID, nil
}

// SearchSimilar returns up to topK records ordered by descending cosine
// similarity to the given embedding. Hits whose backing record has vanished
// are logged and skipped instead of failing the whole search.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]*model.ScoredRecord, error) {
	hits := s.index.Query(embedding, topK)
	if len(hits) == 0 {
		return nil, nil
	}

	records := make([]*model.ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		record, err := s.repo.GetRecord(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, model.ErrRecordNotFound) {
				logging.From(ctx).Warn("index hit without backing record", "record_id", hit.ID)
				continue
			}
			return nil, err
		}
		records = append(records, &model.ScoredRecord{
			MemoryRecord: record,
			Score:        hit.Score,
		})
	}

	return records, nil
}

// Get retrieves a single record by ID.
func (s *Store) Get(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error) {
	return s.repo.GetRecord(ctx, id)
}

// List returns stored records, newest first.
func (s *Store) List(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error) {
	return s.repo.ListRecords(ctx, offset, limit)
}

// Len returns the number of searchable (indexed) records.
func (s *Store) Len() int {
	return s.index.Len()
}
