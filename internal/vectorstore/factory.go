package vectorstore

import (
	"context"
	"fmt"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/vectorstore/chromem"
	"github.com/sandevgo/recall/internal/vectorstore/postgres"
	"github.com/sandevgo/recall/internal/vectorstore/qdrant"
	"github.com/sandevgo/recall/pkg/log"
)

// NewFactStore builds the configured vector store adapter. The choice is
// made once here; callers only ever see core.FactStore.
func NewFactStore(ctx context.Context, cfg *config.MemoryConfig, dims int) (core.FactStore, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Msg("starting vector store")

	switch cfg.Provider {
	case "chromem":
		return chromem.NewStore()
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres vector store requires RECALL_POSTGRES_URL")
		}
		return postgres.NewStore(ctx, cfg.PostgresURL, dims)
	case "qdrant":
		return qdrant.NewStore(ctx, cfg.QdrantURL, cfg.QdrantCollection, dims)
	default:
		return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Provider)
	}
}
