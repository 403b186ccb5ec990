package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/core"
)

type fakeTranscript struct {
	messages []core.Message
	err      error
	block    bool
}

func (f *fakeTranscript) RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

type fakeMemory struct {
	facts   []core.MemoryFact
	err     error
	block   bool
	filters core.FactFilters
	called  bool
}

func (f *fakeMemory) Search(ctx context.Context, query string, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	f.called = true
	f.filters = filters
	if f.block {
		<-ctx.Done()
		return nil, core.ErrDeadlineExceeded
	}
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.facts) > limit {
		return f.facts[:limit], nil
	}
	return f.facts, nil
}

func testConfig() Config {
	return Config{
		TranscriptWindow: 30,
		SearchTopK:       10,
		FetchTimeout:     100 * time.Millisecond,
		MaxItems:         50,
		MaxChars:         16000,
	}
}

func messages(contents ...string) []core.Message {
	msgs := make([]core.Message, 0, len(contents))
	for i, c := range contents {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		msgs = append(msgs, core.Message{Seq: int64(i + 1), Role: role, Content: c})
	}
	return msgs
}

func facts(texts ...string) []core.MemoryFact {
	out := make([]core.MemoryFact, 0, len(texts))
	for i, text := range texts {
		out = append(out, core.MemoryFact{Text: text, Score: 1.0 - float64(i)*0.1})
	}
	return out
}

func TestAssemble_MergesTranscriptAndFacts(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("hi", "hello")}
	memory := &fakeMemory{facts: facts("User likes espresso")}

	a, err := New(transcript, memory, testConfig())
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "coffee?", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, bundle.Degraded)
	assert.Equal(t, 2, bundle.TranscriptCount)
	assert.Equal(t, 1, bundle.FactCount)
	require.Len(t, bundle.Entries, 3)
	assert.Equal(t, "hi", bundle.Entries[0].Content)
	assert.Equal(t, core.RoleSystem, bundle.Entries[2].Role)
	assert.Equal(t, "[Relevant Context: User likes espresso]", bundle.Entries[2].Content)
}

func TestAssemble_MemoryScope(t *testing.T) {
	tests := []struct {
		name        string
		req         Request
		wantCalled  bool
		wantFilters core.FactFilters
	}{
		{
			name:        "session scope by default",
			req:         Request{Query: "q", SessionID: "s1", UserID: "u1"},
			wantCalled:  true,
			wantFilters: core.FactFilters{UserID: "u1", SessionID: "s1"},
		},
		{
			name:        "recall widens to user scope",
			req:         Request{Query: "q", SessionID: "s1", UserID: "u1", Recall: true},
			wantCalled:  true,
			wantFilters: core.FactFilters{UserID: "u1"},
		},
		{
			name:       "no user skips memory entirely",
			req:        Request{Query: "q", SessionID: "s1"},
			wantCalled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memory := &fakeMemory{}
			a, err := New(&fakeTranscript{messages: messages("hi")}, memory, testConfig())
			require.NoError(t, err)

			bundle, err := a.Assemble(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalled, memory.called)
			if tt.wantCalled {
				assert.Equal(t, tt.wantFilters, memory.filters)
			}
			// Skipping memory for lack of scope is not degradation.
			assert.False(t, bundle.Degraded)
		})
	}
}

func TestAssemble_TranscriptFailureIsFatal(t *testing.T) {
	transcript := &fakeTranscript{err: errors.New("disk gone")}
	a, err := New(transcript, &fakeMemory{}, testConfig())
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	assert.ErrorIs(t, err, core.ErrContextUnavailable)
}

func TestAssemble_TranscriptFailureDoesNotWaitForMemory(t *testing.T) {
	transcript := &fakeTranscript{err: errors.New("disk gone")}
	memory := &fakeMemory{block: true}

	cfg := testConfig()
	cfg.FetchTimeout = 2 * time.Second
	a, err := New(transcript, memory, cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	assert.ErrorIs(t, err, core.ErrContextUnavailable)
	// Returns on the transcript error, not after the memory timeout.
	assert.Less(t, time.Since(start), time.Second)
}

func TestAssemble_MemoryFailureDegrades(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("hi", "hello")}
	memory := &fakeMemory{err: errors.New("vector store down")}

	a, err := New(transcript, memory, testConfig())
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, bundle.Degraded)
	assert.Equal(t, 2, bundle.TranscriptCount)
	assert.Zero(t, bundle.FactCount)
	assert.Equal(t, int64(1), a.DegradedCount())
}

func TestAssemble_SlowMemoryTimesOut(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("hi")}
	memory := &fakeMemory{block: true}

	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	a, err := New(transcript, memory, cfg)
	require.NoError(t, err)

	start := time.Now()
	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, bundle.Degraded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAssemble_SlowTranscriptFails(t *testing.T) {
	transcript := &fakeTranscript{block: true}

	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	a, err := New(transcript, &fakeMemory{}, cfg)
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	assert.ErrorIs(t, err, core.ErrContextUnavailable)
}

func TestAssemble_DedupsFactsInTranscript(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("My name is Sean.", "Nice to meet you, Sean!")}
	memory := &fakeMemory{facts: facts("my name is sean", "User works at OpenAI")}

	a, err := New(transcript, memory, testConfig())
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, bundle.FactCount)
	for _, e := range bundle.Entries {
		assert.NotContains(t, e.Content, "[Relevant Context: my name is sean]")
	}
}

func TestAssemble_ItemBudgetDropsFactsFirst(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("one", "two", "three")}
	memory := &fakeMemory{facts: facts("top fact", "mid fact", "tail fact")}

	cfg := testConfig()
	cfg.MaxItems = 4
	a, err := New(transcript, memory, cfg)
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// All three transcript turns survive; only the top fact remains.
	assert.Equal(t, 3, bundle.TranscriptCount)
	assert.Equal(t, 1, bundle.FactCount)
	assert.Equal(t, "[Relevant Context: top fact]", bundle.Entries[3].Content)
}

func TestAssemble_ItemBudgetThenTrimsOldestTurns(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("oldest", "middle", "newest")}
	memory := &fakeMemory{facts: facts("some fact")}

	cfg := testConfig()
	cfg.MaxItems = 2
	a, err := New(transcript, memory, cfg)
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, bundle.TranscriptCount)
	assert.Zero(t, bundle.FactCount)
	assert.Equal(t, "middle", bundle.Entries[0].Content)
	assert.Equal(t, "newest", bundle.Entries[1].Content)
}

func TestAssemble_CharBudget(t *testing.T) {
	long := strings.Repeat("x", 100)
	transcript := &fakeTranscript{messages: messages(long, long)}
	memory := &fakeMemory{facts: facts(long)}

	cfg := testConfig()
	cfg.MaxChars = 250
	a, err := New(transcript, memory, cfg)
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// The fact entry alone exceeds the remaining budget.
	assert.Equal(t, 2, bundle.TranscriptCount)
	assert.Zero(t, bundle.FactCount)
}

// wordCounter stands in for the real encoding: one token per word.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func newTokenBudgetAssembler(t *testing.T, transcript TranscriptReader, memory FactSearcher, maxTokens int) *Assembler {
	t.Helper()

	a, err := New(transcript, memory, testConfig())
	require.NoError(t, err)
	a.cfg.MaxTokens = maxTokens
	a.tokens = wordCounter{}
	return a
}

func TestAssemble_TokenBudgetDropsFactsFirst(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("one two three", "four five")}
	memory := &fakeMemory{facts: facts("alpha beta")}

	// Transcript is 5 tokens; the rendered fact pushes past the budget.
	a := newTokenBudgetAssembler(t, transcript, memory, 6)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, bundle.TranscriptCount)
	assert.Zero(t, bundle.FactCount)
}

func TestAssemble_TokenBudgetThenTrimsOldestTurns(t *testing.T) {
	transcript := &fakeTranscript{messages: messages("one two three", "four five")}
	memory := &fakeMemory{facts: facts("alpha beta")}

	a := newTokenBudgetAssembler(t, transcript, memory, 2)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, bundle.TranscriptCount)
	assert.Zero(t, bundle.FactCount)
	assert.Equal(t, "four five", bundle.Entries[0].Content)
}

func TestAssemble_EmptySession(t *testing.T) {
	a, err := New(&fakeTranscript{}, &fakeMemory{}, testConfig())
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "fresh", UserID: "u1"})
	require.NoError(t, err)

	assert.Empty(t, bundle.Entries)
	assert.False(t, bundle.Degraded)
}

func TestAssemble_FactOrderPreservedByRelevance(t *testing.T) {
	memory := &fakeMemory{facts: facts("first", "second", "third")}
	a, err := New(&fakeTranscript{}, memory, testConfig())
	require.NoError(t, err)

	bundle, err := a.Assemble(context.Background(), Request{Query: "q", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	require.Equal(t, 3, bundle.FactCount)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, fmt.Sprintf("[Relevant Context: %s]", want), bundle.Entries[i].Content)
	}
}
