package core

import "context"

// Embedder vectorizes text. Treated as a pure function of its input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Extractor derives zero or more candidate fact strings from one
// conversation turn. Failures are non-fatal to ingestion.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}
