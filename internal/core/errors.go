package core

import "errors"

var (
	// ErrSessionNotFound: the caller referenced a session that does not
	// exist and did not ask for auto-creation.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorageUnavailable: the transcript store stayed unreachable after
	// the write retry budget. Fatal to the operation that hit it.
	ErrStorageUnavailable = errors.New("transcript storage unavailable")

	// ErrDeadlineExceeded: a semantic search missed its deadline. Non-fatal;
	// the assembler falls back to transcript-only context.
	ErrDeadlineExceeded = errors.New("memory search deadline exceeded")

	// ErrContextUnavailable: the transcript fetch itself failed, so no
	// coherent context can be assembled.
	ErrContextUnavailable = errors.New("context unavailable")
)
