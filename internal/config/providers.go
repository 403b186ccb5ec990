package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recall/pkg/log"
)

// ProvidersConfig covers the external capabilities: the embedder that
// vectorizes facts and queries, and the LLM that extracts facts from turns.
type ProvidersConfig struct {
	// EmbedProvider: "openai" or "mock".
	EmbedProvider string `env:"RECALL_EMBED_PROVIDER" envDefault:"openai"`
	EmbedModel    string `env:"RECALL_EMBED_MODEL" envDefault:"text-embedding-3-small"`
	EmbedDims     int    `env:"RECALL_EMBED_DIMS" envDefault:"1536"`

	// ExtractProvider: "openai", "anthropic" or "none".
	ExtractProvider string `env:"RECALL_EXTRACT_PROVIDER" envDefault:"openai"`
	ExtractModel    string `env:"RECALL_EXTRACT_MODEL" envDefault:"gpt-4o-mini"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

func NewProvidersConfig(ctx context.Context) *ProvidersConfig {
	c := &ProvidersConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse providers config")
	}
	return c
}
