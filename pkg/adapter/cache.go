package adapter

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// CachedLLM memoizes Embed and ExpandPrompt results. Both operations are
// deterministic per input, so serving from cache is transparent and keeps
// repeated pipeline runs from re-billing the same texts.
type CachedLLM struct {
	llm   LLM
	cache *ristretto.Cache
}

// NewCachedLLM wraps an LLM with an in-process result cache of roughly
// maxBytes memory.
func NewCachedLLM(llm LLM, maxBytes int64) (*CachedLLM, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 24 // 16MiB default
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create llm cache")
	}

	return &CachedLLM{llm: llm, cache: cache}, nil
}

func (c *CachedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	key := "embed:" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.llm.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, vec, int64(len(vec)*4))
	return vec, nil
}

func (c *CachedLLM) ExpandPrompt(ctx context.Context, prompt string) (string, error) {
	key := "expand:" + prompt
	if v, ok := c.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return text, nil
		}
	}

	text, err := c.llm.ExpandPrompt(ctx, prompt)
	if err != nil {
		return "", err
	}

	c.cache.Set(key, text, int64(len(text)))
	return text, nil
}

// Close releases the cache resources.
func (c *CachedLLM) Close() {
	c.cache.Close()
}
