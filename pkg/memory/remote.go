package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// RemoteEmbedder calls an OpenAI-compatible /embeddings endpoint, used
// whenever config.Agents.Defaults.EmbeddingModel is anything other than
// "local".
type RemoteEmbedder struct {
	client openai.Client
	model  string
}

// NewRemoteEmbedder builds an embedder against apiBase using apiKey and model.
func NewRemoteEmbedder(apiKey, apiBase, model string) *RemoteEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(apiBase) != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &RemoteEmbedder{client: openai.NewClient(opts...), model: model}
}

// Generate embeds texts via the remote API, returning one vector per input
// in the same order.
func (e *RemoteEmbedder) Generate(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("remote embedding call: %w", err)
	}

	byIndex := make(map[int64][]float64, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = v
		}
		byIndex[d.Index] = vec
	}

	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = byIndex[int64(i)]
	}
	return out, nil
}
