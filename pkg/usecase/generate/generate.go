package generate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/fabrica/pkg/adapter"
	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/fabrica/pkg/service/remote"
	"github.com/m-mizutani/fabrica/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase drives the generation pipeline: expand the prompt, call the
// text-to-image service, feed the image to the image-to-3d service, save the
// artifacts, and remember the outcome.
type UseCase struct {
	client  *remote.Client
	llm     adapter.LLM
	memory  *memory.Store
	storage adapter.Storage
}

// New creates a generate UseCase.
func New(client *remote.Client, llm adapter.LLM, store *memory.Store, storage adapter.Storage) *UseCase {
	return &UseCase{
		client:  client,
		llm:     llm,
		memory:  store,
		storage: storage,
	}
}

// Input is one generation request.
type Input struct {
	Prompt string
}

// Output reports what the pipeline produced. Skipped lists services that
// were unavailable but tolerated under the best-effort policy.
type Output struct {
	RecordID       model.RecordID
	Prompt         string
	ExpandedPrompt string
	ImagePath      string
	ModelPath      string
	Skipped        []model.ServiceID
}

// Run executes the pipeline. With RequireAll configured, any unavailable
// service aborts the whole flow and nothing is remembered. Otherwise an
// unavailable service only skips its stage (and the stages depending on it)
// and the partial outcome is still recorded.
func (u *UseCase) Run(ctx context.Context, input Input) (*Output, error) {
	if input.Prompt == "" {
		return nil, goerr.Wrap(model.ErrEmptyPrompt, "generation requires a prompt")
	}
	logger := logging.From(ctx)

	expanded, err := u.llm.ExpandPrompt(ctx, input.Prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to expand prompt")
	}
	logger.Debug("prompt expanded", "prompt", input.Prompt, "expanded", expanded)

	out := &Output{
		Prompt:         input.Prompt,
		ExpandedPrompt: expanded,
	}

	imageData, err := u.callStage(ctx, out, model.ServiceTextToImage, map[string]any{
		"prompt": expanded,
	}, "image")
	if err != nil {
		return nil, err
	}

	if imageData != nil {
		out.ImagePath, err = u.saveArtifact(ctx, "images", input.Prompt, "png", imageData)
		if err != nil {
			return nil, err
		}

		modelData, err := u.callStage(ctx, out, model.ServiceImageTo3D, map[string]any{
			"image": base64.StdEncoding.EncodeToString(imageData),
		}, "model")
		if err != nil {
			return nil, err
		}
		if modelData != nil {
			out.ModelPath, err = u.saveArtifact(ctx, "models", input.Prompt, "glb", modelData)
			if err != nil {
				return nil, err
			}
		}
	} else {
		// No image means the 3D stage cannot run either
		out.Skipped = append(out.Skipped, model.ServiceImageTo3D)
	}

	embedding, err := u.llm.Embed(ctx, input.Prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed prompt")
	}

	out.RecordID, err = u.memory.Add(ctx, input.Prompt, out.ImagePath, out.ModelPath, embedding)
	if err != nil {
		return nil, err
	}

	logger.Info("generation recorded",
		"record_id", out.RecordID,
		"image", out.ImagePath,
		"model", out.ModelPath,
		"skipped", out.Skipped,
	)

	return out, nil
}

// callStage invokes one service and decodes its artifact. Under best-effort
// policy an unavailable service yields (nil, nil) and is recorded in
// out.Skipped; every other failure aborts.
func (u *UseCase) callStage(ctx context.Context, out *Output, serviceID model.ServiceID, payload map[string]any, artifactKey string) ([]byte, error) {
	result, err := u.client.Call(ctx, serviceID, payload)
	if err != nil {
		if errors.Is(err, model.ErrServiceUnavailable) && !u.client.RequireAll() {
			logging.From(ctx).Warn("skipping unavailable service", "service", serviceID)
			out.Skipped = append(out.Skipped, serviceID)
			return nil, nil
		}
		return nil, err
	}

	data, err := artifactBytes(result, artifactKey)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid artifact in response", goerr.V("service", serviceID))
	}
	return data, nil
}

func (u *UseCase) saveArtifact(ctx context.Context, kind, prompt, ext string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s_%s.%s", kind, time.Now().Format("20060102_150405"), slugify(prompt), ext)

	w, err := u.storage.Put(ctx, key)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to write artifact", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize artifact", goerr.V("key", key))
	}

	return key, nil
}

// artifactBytes extracts binary artifact data from the result mapping.
// Services return either base64 text or raw bytes.
func artifactBytes(result *model.CallResult, key string) ([]byte, error) {
	raw, ok := result.Result[key]
	if !ok {
		return nil, goerr.New("artifact missing from result", goerr.V("key", key))
	}

	switch v := raw.(type) {
	case string:
		if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
			return decoded, nil
		}
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, goerr.New("unsupported artifact type", goerr.V("key", key))
	}
}

// slugify reduces a prompt to a short filesystem-safe fragment.
func slugify(prompt string) string {
	const maxLen = 30

	var b strings.Builder
	for _, r := range strings.ToLower(prompt) {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}

	if b.Len() == 0 {
		return "prompt"
	}
	return b.String()
}
