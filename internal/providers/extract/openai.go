package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type openAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *openAIExtractor {
	return &openAIExtractor{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (e *openAIExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	rsp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildExtractionPrompt(text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(rsp.Choices) == 0 {
		return nil, errors.New("empty completion response")
	}

	return parseExtractionResponse(rsp.Choices[0].Message.Content)
}
