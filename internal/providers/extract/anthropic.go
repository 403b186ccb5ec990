package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicExtractor struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) *anthropicExtractor {
	client := anthropic.NewClient(
		anthropicopt.WithAPIKey(apiKey),
	)
	return &anthropicExtractor{
		client: &client,
		model:  model,
	}
}

func (e *anthropicExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildExtractionPrompt(text))),
		},
	}

	rsp, err := e.client.Messages.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if block, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(block.Text)
		}
	}

	result := b.String()
	if len(result) == 0 {
		return nil, errors.New("empty message response")
	}

	return parseExtractionResponse(result)
}
