package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/service/assembler"
	"github.com/sandevgo/recall/internal/service/ingest"
	"github.com/sandevgo/recall/internal/service/semantic"
	"github.com/sandevgo/recall/pkg/log"
)

// Engine is the boundary consumed by the agent and LLM-invocation layers.
// It owns no state of its own; it coordinates the transcript store, the
// semantic memory service, the assembler and the ingestion pipeline.
type Engine struct {
	transcript core.TranscriptRepository
	semantic   *semantic.Service
	assembler  *assembler.Assembler
	pipeline   *ingest.Pipeline

	// syncIngest processes facts inline on RecordTurn instead of through
	// the background workers. For tests and latency-insensitive callers.
	syncIngest bool
}

func New(transcript core.TranscriptRepository, sem *semantic.Service, asm *assembler.Assembler, pipeline *ingest.Pipeline) *Engine {
	return &Engine{
		transcript: transcript,
		semantic:   sem,
		assembler:  asm,
		pipeline:   pipeline,
	}
}

// WithSyncIngestion makes RecordTurn wait for fact extraction and upsert.
func (e *Engine) WithSyncIngestion() *Engine {
	e.syncIngest = true
	return e
}

// AssembleContextOptions tune one assembly call.
type AssembleContextOptions struct {
	// UserID scopes long-term memory; empty means transcript-only.
	UserID string
	// Recall widens memory to every session owned by UserID.
	Recall bool
}

// AssembleContext builds the bounded context bundle for one query.
// Returns ErrContextUnavailable when the transcript cannot be read; memory
// slowness never fails the call.
func (e *Engine) AssembleContext(ctx context.Context, query, sessionID string, opts AssembleContextOptions) (*core.ContextBundle, error) {
	return e.assembler.Assemble(ctx, assembler.Request{
		Query:     query,
		SessionID: sessionID,
		UserID:    opts.UserID,
		Recall:    opts.Recall,
	})
}

// RecordTurnOptions tune one append call.
type RecordTurnOptions struct {
	// UserID owns the session on auto-create and tags extracted facts.
	UserID string
	// AutoCreate creates a missing session instead of failing.
	AutoCreate bool
	Metadata   map[string]string
}

// RecordTurn appends the turn to the transcript and hands it to the
// ingestion pipeline. Ingestion never blocks or fails the append.
func (e *Engine) RecordTurn(ctx context.Context, sessionID, role, content string, opts RecordTurnOptions) (*core.Message, error) {
	msg, err := e.transcript.AppendMessage(ctx, sessionID, role, content, opts.Metadata, core.AppendOptions{
		AutoCreate: opts.AutoCreate,
		UserID:     opts.UserID,
	})
	if err != nil {
		return nil, err
	}

	userID := opts.UserID
	if userID == "" {
		if session, err := e.transcript.GetSession(ctx, sessionID); err == nil {
			userID = session.UserID
		}
	}

	if e.syncIngest {
		e.pipeline.IngestSync(ctx, sessionID, userID, role, content)
	} else {
		e.pipeline.Enqueue(ctx, sessionID, userID, role, content)
	}

	return msg, nil
}

// ForgetSession removes the session's long-term facts and soft-deletes the
// session itself. Idempotent: forgetting an unknown or already-forgotten
// session succeeds with zero facts removed. Returns the number of facts
// deleted.
func (e *Engine) ForgetSession(ctx context.Context, sessionID, userID string) (int, error) {
	deleted, err := e.semantic.DeleteByOwner(ctx, sessionID, userID)
	if err != nil {
		return 0, fmt.Errorf("forget session facts: %w", err)
	}

	if err := e.transcript.SetSessionStatus(ctx, sessionID, core.SessionDeleted); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return deleted, fmt.Errorf("mark session deleted: %w", err)
	}

	log.FromCtx(ctx).Info().
		Str("session_id", sessionID).
		Int("facts_deleted", deleted).
		Msg("session forgotten")

	return deleted, nil
}

// PurgeSession physically erases the transcript after ForgetSession.
func (e *Engine) PurgeSession(ctx context.Context, sessionID, userID string) error {
	if _, err := e.ForgetSession(ctx, sessionID, userID); err != nil {
		return err
	}
	return e.transcript.PurgeSession(ctx, sessionID)
}

// SessionFacts lists a session's stored facts, newest first.
func (e *Engine) SessionFacts(ctx context.Context, sessionID, userID string, limit int) ([]core.MemoryFact, error) {
	return e.semantic.ListSessionFacts(ctx, sessionID, userID, limit)
}

// UserFacts lists all facts owned by a user across sessions, newest first.
func (e *Engine) UserFacts(ctx context.Context, userID string, limit int) ([]core.MemoryFact, error) {
	return e.semantic.ListUserFacts(ctx, userID, limit)
}

// WaitForIngestion blocks until pending ingestion settles, so tests and
// batch callers need not sleep.
func (e *Engine) WaitForIngestion(ctx context.Context) error {
	return e.pipeline.Wait(ctx)
}

// Stats reports engine counters for observability.
type Stats struct {
	Ingestion       ingest.Stats
	DegradedBundles int64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Ingestion:       e.pipeline.Stats(),
		DegradedBundles: e.assembler.DegradedCount(),
	}
}
