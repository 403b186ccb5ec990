package assembler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// TranscriptReader is the transcript-side dependency: recent turns of one
// session, oldest first.
type TranscriptReader interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error)
}

// FactSearcher is the memory-side dependency: scoped similarity search.
type FactSearcher interface {
	Search(ctx context.Context, query string, filters core.FactFilters, limit int) ([]core.MemoryFact, error)
}

// Config bounds one assembled context.
type Config struct {
	// TranscriptWindow is the N most recent turns fetched per query.
	TranscriptWindow int
	// SearchTopK is the K most relevant facts fetched per query.
	SearchTopK int
	// FetchTimeout caps each of the two fetches independently.
	FetchTimeout time.Duration
	// MaxItems and MaxChars bound the merged bundle.
	MaxItems int
	MaxChars int
	// MaxTokens additionally bounds the bundle by token count when > 0.
	MaxTokens int
}

// Request describes one assembly. Recall opts into cross-session memory
// for the owning user; without it, memory is scoped to the session.
type Request struct {
	Query     string
	SessionID string
	UserID    string
	Recall    bool
}

// tokenCounter abstracts the encoding behind the token budget.
type tokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Assembler merges the session transcript with relevant long-term facts
// into one bounded ContextBundle. The transcript is essential; the
// semantic store is best-effort.
type Assembler struct {
	transcript TranscriptReader
	memory     FactSearcher
	cfg        Config

	tokens   tokenCounter
	degraded atomic.Int64
}

func New(transcript TranscriptReader, memory FactSearcher, cfg Config) (*Assembler, error) {
	a := &Assembler{
		transcript: transcript,
		memory:     memory,
		cfg:        cfg,
	}

	if cfg.MaxTokens > 0 {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load token encoding: %w", err)
		}
		a.tokens = tiktokenCounter{enc: enc}
	}

	return a, nil
}

// DegradedCount reports how many bundles were assembled without long-term
// memory because the semantic store was slow or failing.
func (a *Assembler) DegradedCount() int64 {
	return a.degraded.Load()
}

type fetchResult[T any] struct {
	value T
	err   error
}

// Assemble runs both fetches concurrently, merges, deduplicates, and
// bounds the result. A transcript failure surfaces ErrContextUnavailable;
// a memory failure yields a degraded transcript-only bundle.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*core.ContextBundle, error) {
	logger := log.FromCtx(ctx)

	transcriptCh := make(chan fetchResult[[]core.Message], 1)
	memoryCh := make(chan fetchResult[[]core.MemoryFact], 1)

	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
		msgs, err := a.transcript.RecentMessages(fetchCtx, req.SessionID, a.cfg.TranscriptWindow)
		transcriptCh <- fetchResult[[]core.Message]{value: msgs, err: err}
	}()

	go func() {
		filters, ok := a.resolveFilters(req)
		if !ok {
			memoryCh <- fetchResult[[]core.MemoryFact]{}
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
		facts, err := a.memory.Search(fetchCtx, req.Query, filters, a.cfg.SearchTopK)
		memoryCh <- fetchResult[[]core.MemoryFact]{value: facts, err: err}
	}()

	// Take results as they arrive; a transcript failure returns without
	// waiting out the memory fetch. Both channels are buffered, so the
	// slower goroutine never leaks.
	var transcript fetchResult[[]core.Message]
	var memory fetchResult[[]core.MemoryFact]
	for tc, mc := transcriptCh, memoryCh; tc != nil || mc != nil; {
		select {
		case transcript = <-tc:
			if transcript.err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrContextUnavailable, transcript.err)
			}
			tc = nil
		case memory = <-mc:
			mc = nil
		}
	}

	degraded := false
	if memory.err != nil {
		degraded = true
		a.degraded.Add(1)
		logger.Warn().Err(memory.err).
			Str("session_id", req.SessionID).
			Msg("memory fetch failed, assembling transcript-only context")
	}

	facts := dedupFacts(memory.value, transcript.value)
	entries := a.bound(transcript.value, facts)

	bundle := &core.ContextBundle{
		Entries:         append(entries.transcript, entries.facts...),
		Degraded:        degraded,
		TranscriptCount: len(entries.transcript),
		FactCount:       len(entries.facts),
	}

	logger.Debug().
		Int("transcript", bundle.TranscriptCount).
		Int("facts", bundle.FactCount).
		Bool("degraded", bundle.Degraded).
		Msg("context assembled")

	return bundle, nil
}

// resolveFilters decides the memory scope for this request. Without a user
// id there is no safe scope, so the memory fetch is skipped outright.
func (a *Assembler) resolveFilters(req Request) (core.FactFilters, bool) {
	if req.UserID == "" {
		return core.FactFilters{}, false
	}
	filters := core.FactFilters{UserID: req.UserID}
	if !req.Recall {
		filters.SessionID = req.SessionID
	}
	return filters, true
}

// renderFact formats a fact as a standalone system entry.
func renderFact(fact core.MemoryFact) core.ContextEntry {
	return core.ContextEntry{
		Role:    core.RoleSystem,
		Content: fmt.Sprintf("[Relevant Context: %s]", fact.Text),
	}
}

// dedupFacts drops facts whose text already appears verbatim in the
// fetched transcript window.
func dedupFacts(facts []core.MemoryFact, transcript []core.Message) []core.MemoryFact {
	if len(facts) == 0 {
		return nil
	}

	window := make([]string, 0, len(transcript))
	for _, msg := range transcript {
		window = append(window, core.NormalizeFactText(msg.Content))
	}

	kept := facts[:0]
	for _, fact := range facts {
		norm := core.NormalizeFactText(fact.Text)
		seen := false
		for _, content := range window {
			if strings.Contains(content, norm) {
				seen = true
				break
			}
		}
		if !seen {
			kept = append(kept, fact)
		}
	}
	return kept
}

type boundedEntries struct {
	transcript []core.ContextEntry
	facts      []core.ContextEntry
}

// bound truncates the merged sequence to the configured budgets. Facts are
// already ordered by descending relevance, so the least relevant fact is
// always dropped before any transcript message; transcript messages are
// dropped oldest first only once no facts remain.
func (a *Assembler) bound(transcript []core.Message, facts []core.MemoryFact) boundedEntries {
	entries := boundedEntries{}

	for _, msg := range transcript {
		entries.transcript = append(entries.transcript, core.ContextEntry{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	for _, fact := range facts {
		entries.facts = append(entries.facts, renderFact(fact))
	}

	for a.overBudget(entries) {
		if len(entries.facts) > 0 {
			entries.facts = entries.facts[:len(entries.facts)-1]
			continue
		}
		if len(entries.transcript) > 0 {
			entries.transcript = entries.transcript[1:]
			continue
		}
		break
	}

	return entries
}

func (a *Assembler) overBudget(entries boundedEntries) bool {
	items := len(entries.transcript) + len(entries.facts)
	if a.cfg.MaxItems > 0 && items > a.cfg.MaxItems {
		return true
	}

	chars := 0
	tokens := 0
	for _, e := range entries.transcript {
		chars += len(e.Content)
		tokens += a.countTokens(e.Content)
	}
	for _, e := range entries.facts {
		chars += len(e.Content)
		tokens += a.countTokens(e.Content)
	}

	if a.cfg.MaxChars > 0 && chars > a.cfg.MaxChars {
		return true
	}
	if a.cfg.MaxTokens > 0 && tokens > a.cfg.MaxTokens {
		return true
	}
	return false
}

func (a *Assembler) countTokens(text string) int {
	if a.tokens == nil {
		return 0
	}
	return a.tokens.Count(text)
}
