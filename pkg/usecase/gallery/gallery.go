package gallery

import (
	"context"

	"github.com/m-mizutani/fabrica/pkg/adapter"
	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase provides read access to remembered generations.
type UseCase struct {
	memory *memory.Store
	llm    adapter.LLM
}

// New creates a gallery UseCase.
func New(store *memory.Store, llm adapter.LLM) *UseCase {
	return &UseCase{
		memory: store,
		llm:    llm,
	}
}

// Search finds past generations whose prompts are semantically similar to
// the query text, best match first.
func (u *UseCase) Search(ctx context.Context, query string, limit int) ([]*model.ScoredRecord, error) {
	if query == "" {
		return nil, goerr.New("search query is empty")
	}

	embedding, err := u.llm.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	return u.memory.SearchSimilar(ctx, embedding, limit)
}

// List returns stored generations, newest first.
func (u *UseCase) List(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error) {
	return u.memory.List(ctx, offset, limit)
}

// Show retrieves one generation by record ID.
func (u *UseCase) Show(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error) {
	return u.memory.Get(ctx, id)
}
