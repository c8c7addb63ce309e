package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// LLM is the local language-model boundary: deterministic text embeddings
// for similarity search, and expansion of a raw prompt into a richer
// description before generation.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ExpandPrompt(ctx context.Context, prompt string) (string, error)
}

const expandInstruction = `Rewrite the following prompt into a single detailed visual description suitable for an image generation model. Mention composition, lighting, colors and textures. Answer with the description only.`

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimensions      int32
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimensions overrides the embedding vector size. All embeddings
// stored together must use the same size.
func WithEmbeddingDimensions(dim int32) GeminiOption {
	return func(g *GeminiClient) {
		g.dimensions = dim
	}
}

// NewGemini creates a Gemini-backed LLM via Vertex AI.
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		dimensions:      768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := g.dimensions
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response")
	}

	return resp.Embeddings[0].Values, nil
}

func (g *GeminiClient) ExpandPrompt(ctx context.Context, prompt string) (string, error) {
	contents := genai.Text(expandInstruction + "\n\nPrompt: " + prompt)

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", goerr.Wrap(err, "failed to expand prompt")
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.New("empty response from gemini")
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}
