package gallery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/fabrica/pkg/adapter"
	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/repository"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/fabrica/pkg/usecase/gallery"
	"github.com/m-mizutani/gt"
)

func setup(t *testing.T) (*gallery.UseCase, *memory.Store, adapter.LLM) {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.NewSQLite(ctx, ":memory:")
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := memory.New(ctx, repo)
	gt.NoError(t, err)

	llm := adapter.NewMockLLM(32)
	return gallery.New(store, llm), store, llm
}

func addRecord(t *testing.T, store *memory.Store, llm adapter.LLM, prompt string) model.RecordID {
	t.Helper()
	ctx := context.Background()

	emb, err := llm.Embed(ctx, prompt)
	gt.NoError(t, err)
	id, err := store.Add(ctx, prompt, "", "", emb)
	gt.NoError(t, err)
	return id
}

func TestSearchFindsExactPromptFirst(t *testing.T) {
	uc, store, llm := setup(t)
	ctx := context.Background()

	addRecord(t, store, llm, "a lighthouse in a storm")
	wantID := addRecord(t, store, llm, "an origami crane")
	addRecord(t, store, llm, "a steam locomotive")

	hits, err := uc.Search(ctx, "an origami crane", 3)
	gt.NoError(t, err)
	gt.B(t, len(hits) >= 1).True()
	gt.Equal(t, hits[0].ID, wantID)
	gt.B(t, hits[0].Score > 0.999).True()
}

func TestSearchEmptyQuery(t *testing.T) {
	uc, _, _ := setup(t)

	_, err := uc.Search(context.Background(), "", 5)
	gt.Error(t, err)
}

func TestListAndShow(t *testing.T) {
	uc, store, llm := setup(t)
	ctx := context.Background()

	id := addRecord(t, store, llm, "a clockwork beetle")

	records, err := uc.List(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)

	record, err := uc.Show(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, record.Prompt, "a clockwork beetle")

	_, err = uc.Show(ctx, model.RecordID("missing"))
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrRecordNotFound)).True()
}
