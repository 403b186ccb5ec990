package embed

import (
	"context"
	"fmt"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// NewEmbedder builds the configured embedder wrapped in the shared cache.
func NewEmbedder(ctx context.Context, cfg *config.ProvidersConfig, memCfg *config.MemoryConfig) (core.Embedder, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.EmbedProvider).
		Str("model", cfg.EmbedModel).
		Msg("starting embedder")

	var inner core.Embedder
	switch cfg.EmbedProvider {
	case "openai":
		inner = NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDims)
	case "mock":
		inner = NewMock()
	default:
		return nil, fmt.Errorf("unknown embed provider: %s", cfg.EmbedProvider)
	}

	return NewCached(inner, memCfg.EmbedCacheBytes)
}
