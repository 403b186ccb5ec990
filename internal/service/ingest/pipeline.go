package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/service/semantic"
	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/retry"
)

// Config sizes the pipeline.
type Config struct {
	Workers   int
	QueueSize int
	// Retries is the per-fact retry budget after the initial attempt.
	Retries int
}

type job struct {
	sessionID string
	userID    string
	role      string
	content   string
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Extracted int64
	Upserted  int64
	Dropped   int64
}

// Pipeline turns appended turns into long-term facts. It runs detached
// from the request path: Enqueue never blocks the conversation, failures
// are retried a bounded number of times and then dropped with a degraded
// signal. Upserts are deliberately not tied to request cancellation.
type Pipeline struct {
	extractor core.Extractor
	semantic  *semantic.Service
	cfg       Config
	retrier   *retry.Retrier

	queue   chan job
	pending sync.WaitGroup
	done    chan struct{}

	extracted atomic.Int64
	upserted  atomic.Int64
	dropped   atomic.Int64
}

func NewPipeline(extractor core.Extractor, sem *semantic.Service, cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}

	retryCfg := retry.NewDefaultConfig()
	retryCfg.MaxRetries = cfg.Retries

	return &Pipeline{
		extractor: extractor,
		semantic:  sem,
		cfg:       cfg,
		retrier:   retry.NewRetrier(retryCfg),
		queue:     make(chan job, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start runs the worker pool until ctx is cancelled. Implements
// srv.Service.
func (p *Pipeline) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "ingest").Logger()
	logger.Info().Int("workers", p.cfg.Workers).Msg("starting ingestion pipeline")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}

	<-ctx.Done()
	close(p.done)
	wg.Wait()

	// Jobs still queued when the workers exit are dropped, not abandoned:
	// their pending slots settle so Wait returns, and the drop is counted.
	drained := 0
	for {
		select {
		case <-p.queue:
			p.dropped.Add(1)
			p.pending.Done()
			drained++
		default:
			if drained > 0 {
				logger.Warn().Int("dropped", drained).Msg("dropped queued turns at shutdown")
			}
			logger.Info().Msg("ingestion pipeline stopped")
			return nil
		}
	}
}

func (p *Pipeline) Shutdown(ctx context.Context) error {
	return nil
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-p.done:
			return
		case j := <-p.queue:
			p.process(j)
		}
	}
}

// Enqueue hands a turn to the pipeline without blocking. System turns
// carry no user facts and are skipped; a full queue drops the turn with a
// degraded signal rather than stalling the append path.
func (p *Pipeline) Enqueue(ctx context.Context, sessionID, userID, role, content string) {
	if role == core.RoleSystem || content == "" || userID == "" {
		return
	}

	j := job{sessionID: sessionID, userID: userID, role: role, content: content}

	p.pending.Add(1)
	select {
	case p.queue <- j:
	default:
		p.pending.Done()
		p.dropped.Add(1)
		log.FromCtx(ctx).Error().
			Str("session_id", sessionID).
			Msg("ingestion queue full, dropping turn")
	}
}

// IngestSync processes a turn inline, for tests and callers that need
// ingestion settled before the next query.
func (p *Pipeline) IngestSync(ctx context.Context, sessionID, userID, role, content string) {
	if role == core.RoleSystem || content == "" || userID == "" {
		return
	}
	p.pending.Add(1)
	p.process(job{sessionID: sessionID, userID: userID, role: role, content: content})
}

// Wait blocks until every enqueued turn has been processed or ctx expires.
func (p *Pipeline) Wait(ctx context.Context) error {
	settled := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(settled)
	}()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Extracted: p.extracted.Load(),
		Upserted:  p.upserted.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// process runs detached from the originating request: extraction and
// upserts use their own context so a client disconnect never cancels them.
func (p *Pipeline) process(j job) {
	defer p.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := log.FromCtx(ctx).With().Str("component", "ingest").Logger()

	var facts []string
	err := p.retrier.Do(ctx, func() error {
		var extractErr error
		facts, extractErr = p.extractor.Extract(ctx, j.content)
		return extractErr
	})
	if err != nil {
		p.dropped.Add(1)
		logger.Error().Err(err).
			Str("session_id", j.sessionID).
			Msg("fact extraction failed, dropping turn")
		return
	}

	p.extracted.Add(int64(len(facts)))

	for _, fact := range facts {
		err := p.retrier.Do(ctx, func() error {
			_, upsertErr := p.semantic.UpsertFact(ctx, fact, j.userID, j.sessionID)
			return upsertErr
		})
		if err != nil {
			p.dropped.Add(1)
			logger.Error().Err(err).
				Str("session_id", j.sessionID).
				Msg("fact upsert failed, dropping fact")
			continue
		}
		p.upserted.Add(1)
	}
}
