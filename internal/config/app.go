package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recall/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"RECALL_RUNTIME_PATH" envDefault:".recall"`

	// Context assembly
	ContextWindowSize int           `env:"RECALL_CONTEXT_WINDOW_SIZE" envDefault:"30"`
	SearchTopK        int           `env:"RECALL_SEARCH_TOP_K" envDefault:"10"`
	FetchTimeout      time.Duration `env:"RECALL_FETCH_TIMEOUT" envDefault:"2s"`
	MaxBundleItems    int           `env:"RECALL_MAX_BUNDLE_ITEMS" envDefault:"50"`
	MaxBundleChars    int           `env:"RECALL_MAX_BUNDLE_CHARS" envDefault:"16000"`
	// MaxBundleTokens enables a tiktoken budget on top of the char budget.
	// Zero disables token counting.
	MaxBundleTokens int `env:"RECALL_MAX_BUNDLE_TOKENS" envDefault:"0"`

	// Ingestion
	IngestWorkers   int `env:"RECALL_INGEST_WORKERS" envDefault:"2"`
	IngestQueueSize int `env:"RECALL_INGEST_QUEUE_SIZE" envDefault:"256"`
	IngestRetries   int `env:"RECALL_INGEST_RETRIES" envDefault:"2"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "recall.db")
}
