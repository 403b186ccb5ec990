package extract

import (
	"context"
	"fmt"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// NewExtractor creates the configured fact extractor. "none" disables
// extraction entirely; ingestion then has nothing to do.
func NewExtractor(ctx context.Context, cfg *config.ProvidersConfig) (core.Extractor, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.ExtractProvider).
		Str("model", cfg.ExtractModel).
		Msg("starting fact extractor")

	switch cfg.ExtractProvider {
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.ExtractModel), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.ExtractModel), nil
	case "none":
		return noopExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown extract provider: %s", cfg.ExtractProvider)
	}
}

type noopExtractor struct{}

func (noopExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	return nil, nil
}
