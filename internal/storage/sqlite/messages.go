package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/retry"
)

// TranscriptRepo owns session and message lifecycle on SQLite.
type TranscriptRepo struct {
	db      *sql.DB
	retrier *retry.Retrier
	clock   core.Clock
}

func NewTranscriptRepo(db *sql.DB) *TranscriptRepo {
	return &TranscriptRepo{
		db:      db,
		retrier: retry.NewDefaultRetrier(),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source.
func (r *TranscriptRepo) WithClock(clock core.Clock) *TranscriptRepo {
	r.clock = clock
	return r
}

// AppendMessage writes one turn. A failure to append is retried with
// backoff before surfacing ErrStorageUnavailable; a missing session without
// AutoCreate fails fast with ErrSessionNotFound.
func (r *TranscriptRepo) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]string, opts core.AppendOptions) (*core.Message, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		if !errors.Is(err, core.ErrSessionNotFound) {
			return nil, err
		}
		if !opts.AutoCreate {
			return nil, core.ErrSessionNotFound
		}
		if _, err := r.CreateSession(ctx, sessionID, opts.UserID, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
		}
	}

	var msg *core.Message
	err := r.retrier.Do(ctx, func() error {
		m, err := r.appendOnce(ctx, sessionID, role, content, metadata)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("message append attempt failed")
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	return msg, nil
}

func (r *TranscriptRepo) appendOnce(ctx context.Context, sessionID, role, content string, metadata map[string]string) (*core.Message, error) {
	metaStr := ""
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaStr = string(data)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	now := r.clock()
	id := uuid.NewString()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, seq, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, seq, role, content, metaStr, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1, last_active_at = ? WHERE id = ?`,
		now, sessionID,
	); err != nil {
		return nil, fmt.Errorf("failed to update session counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &core.Message{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}, nil
}

// RecentMessages returns the last limit messages in append order.
// On the critical path of every query; served by the (session_id, seq) index.
func (r *TranscriptRepo) RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	query := `SELECT id, session_id, seq, role, content, metadata, created_at FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var metaStr sql.NullString

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content, &metaStr, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if metaStr.Valid && metaStr.String != "" {
			if err := json.Unmarshal([]byte(metaStr.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse back to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	log.FromCtx(ctx).Debug().Int("count", len(messages)).Str("session_id", sessionID).Msg("loaded recent messages")
	return messages, nil
}
