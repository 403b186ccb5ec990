package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type openAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAI returns an embedder backed by the OpenAI embeddings API.
func NewOpenAI(apiKey, model string, dims int) *openAIEmbedder {
	return &openAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
		dims:   dims,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}

	return rsp.Data[0].Embedding, nil
}

func (e *openAIEmbedder) Dimensions() int {
	return e.dims
}
