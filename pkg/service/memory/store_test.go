package memory_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/gt"
)

// fakeRepo is an in-memory Repository for store tests. It allows deleting
// rows directly, which the real interface does not, to exercise the
// missing-record path of SearchSimilar.
type fakeRepo struct {
	mu      sync.Mutex
	records map[model.RecordID]*model.MemoryRecord
	order   []model.RecordID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[model.RecordID]*model.MemoryRecord{}}
}

func (r *fakeRepo) PutRecord(ctx context.Context, record *model.MemoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *fakeRepo) GetRecord(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return record, nil
}

func (r *fakeRepo) ListRecords(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*model.MemoryRecord, 0, len(r.records))
	for _, id := range r.order {
		records = append(records, r.records[id])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

func (r *fakeRepo) ForEachEmbedding(ctx context.Context, fn func(model.RecordID, []float32) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		record := r.records[id]
		if len(record.Embedding) == 0 {
			continue
		}
		if err := fn(id, record.Embedding); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) remove(id model.RecordID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

func newStore(t *testing.T) (*memory.Store, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	store, err := memory.New(context.Background(), repo)
	gt.NoError(t, err)
	return store, repo
}

func TestAddAndSearchRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	emb := []float32{0.1, 0.7, -0.3}
	id, err := store.Add(ctx, "cyberpunk city at night", "img.png", "model.glb", emb)
	gt.NoError(t, err)
	gt.V(t, id).NotEqual("")

	hits, err := store.SearchSimilar(ctx, emb, 1)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, id)
	gt.Equal(t, hits[0].Prompt, "cyberpunk city at night")
	gt.B(t, hits[0].Score > 0.999).True()
}

func TestAddEmptyPrompt(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Add(context.Background(), "", "", "", []float32{1})
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrEmptyPrompt)).True()
}

func TestAddWithoutEmbedding(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	id, err := store.Add(ctx, "record without vector", "", "", nil)
	gt.NoError(t, err)
	gt.Equal(t, store.Len(), 0)

	record, err := store.Get(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, record.Prompt, "record without vector")
}

func TestAddDimensionMismatch(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "first", "", "", []float32{1, 0, 0})
	gt.NoError(t, err)

	_, err = store.Add(ctx, "second", "", "", []float32{1, 0, 0, 0, 0})
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrDimensionMismatch)).True()

	// Neither index nor repository may keep the rejected record
	gt.Equal(t, store.Len(), 1)
	records, err := repo.ListRecords(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
}

func TestSearchSkipsMissingRecord(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	keptID, err := store.Add(ctx, "kept", "", "", []float32{1, 0})
	gt.NoError(t, err)
	goneID, err := store.Add(ctx, "gone", "", "", []float32{0.9, 0.1})
	gt.NoError(t, err)

	repo.remove(goneID)

	hits, err := store.SearchSimilar(ctx, []float32{1, 0}, 5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, keptID)
}

func TestIndexRebuildOnStartup(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	gt.NoError(t, repo.PutRecord(ctx, &model.MemoryRecord{
		ID:        model.NewRecordID(),
		Prompt:    "persisted before startup",
		Embedding: []float32{0.2, 0.8},
		CreatedAt: time.Now(),
	}))

	store, err := memory.New(ctx, repo)
	gt.NoError(t, err)
	gt.Equal(t, store.Len(), 1)

	hits, err := store.SearchSimilar(ctx, []float32{0.2, 0.8}, 1)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Prompt, "persisted before startup")
}

func TestConcurrentAdds(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Add(ctx, "concurrent", "", "", []float32{1, 2, 3})
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.Equal(t, store.Len(), 16)
}
