package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/recall/internal/core"
)

func (r *TranscriptRepo) CreateSession(ctx context.Context, id, userID, title string) (*core.Session, error) {
	now := r.clock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, status, created_at, last_active_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, title, core.SessionActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return &core.Session{
		ID:           id,
		UserID:       userID,
		Title:        title,
		Status:       core.SessionActive,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

func (r *TranscriptRepo) GetSession(ctx context.Context, id string) (*core.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, status, message_count, created_at, last_active_at FROM sessions WHERE id = ?`,
		id,
	)

	var s core.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.MessageCount, &s.CreatedAt, &s.LastActiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

func (r *TranscriptRepo) SetSessionStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ?`, status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (r *TranscriptRepo) ListSessions(ctx context.Context, filter core.SessionFilter) ([]core.Session, error) {
	query := `SELECT id, user_id, title, status, message_count, created_at, last_active_at FROM sessions`

	var conds []string
	var args []any
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_active_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		var s core.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.MessageCount, &s.CreatedAt, &s.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// PurgeSession physically erases the session row and its messages.
func (r *TranscriptRepo) PurgeSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge session: %w", err)
	}

	return tx.Commit()
}
