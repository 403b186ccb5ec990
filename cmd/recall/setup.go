package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/providers/embed"
	"github.com/sandevgo/recall/internal/providers/extract"
	"github.com/sandevgo/recall/internal/service/assembler"
	"github.com/sandevgo/recall/internal/service/engine"
	"github.com/sandevgo/recall/internal/service/ingest"
	"github.com/sandevgo/recall/internal/service/semantic"
	"github.com/sandevgo/recall/internal/storage/sqlite"
	"github.com/sandevgo/recall/internal/vectorstore"
	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/srv"
)

// NewServices wires the whole engine and returns the background services
// plus the engine facade for embedding callers.
func NewServices(ctx context.Context) ([]srv.Service, *engine.Engine) {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// Configuration
	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)
	provCfg := config.NewProvidersConfig(ctx)

	// Transcript store
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transcript store")
	}
	services = append(services, srv.NewCleanup(db.Close))
	transcript := sqlite.NewTranscriptRepo(db)

	// Providers
	embedder, err := embed.NewEmbedder(ctx, provCfg, memCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder")
	}

	extractor, err := extract.NewExtractor(ctx, provCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize extractor")
	}

	// Semantic memory store
	factStore, err := vectorstore.NewFactStore(ctx, memCfg, embedder.Dimensions())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vector store")
	}
	services = append(services, srv.NewCleanup(factStore.Close))

	sem := semantic.NewService(factStore, embedder, appCfg.FetchTimeout)

	// Context assembler
	asm, err := assembler.New(transcript, sem, assembler.Config{
		TranscriptWindow: appCfg.ContextWindowSize,
		SearchTopK:       appCfg.SearchTopK,
		FetchTimeout:     appCfg.FetchTimeout,
		MaxItems:         appCfg.MaxBundleItems,
		MaxChars:         appCfg.MaxBundleChars,
		MaxTokens:        appCfg.MaxBundleTokens,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize assembler")
	}

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(extractor, sem, ingest.Config{
		Workers:   appCfg.IngestWorkers,
		QueueSize: appCfg.IngestQueueSize,
		Retries:   appCfg.IngestRetries,
	})
	services = append(services, pipeline)

	return services, engine.New(transcript, sem, asm, pipeline)
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
