package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitebot/kite/internal/session"
)

// TranscriptEntry is one archived conversation message.
type TranscriptEntry struct {
	ID         uuid.UUID
	SessionKey string
	Role       string
	Content    string
	ToolName   string
	CreatedAt  time.Time
}

// FromMessage converts an in-memory session message into its archive form.
func FromMessage(sessionKey string, msg session.Message) *TranscriptEntry {
	return &TranscriptEntry{
		ID:         msg.ID,
		SessionKey: sessionKey,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolName:   msg.ToolName,
		CreatedAt:  msg.Timestamp,
	}
}

type TranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepo(pool *pgxpool.Pool) *TranscriptRepo {
	return &TranscriptRepo{pool: pool}
}

func (r *TranscriptRepo) Append(ctx context.Context, entry *TranscriptEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_entries (id, session_key, role, content, tool_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.SessionKey, entry.Role, entry.Content, entry.ToolName, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("transcriptRepo.Append: %w", err)
	}

	return nil
}

func (r *TranscriptRepo) ListBySession(ctx context.Context, sessionKey string, limit, offset int) ([]*TranscriptEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_key, role, content, tool_name, created_at
		 FROM transcript_entries WHERE session_key = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		sessionKey, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("transcriptRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var entries []*TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry

		err = rows.Scan(&e.ID, &e.SessionKey, &e.Role, &e.Content, &e.ToolName, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("transcriptRepo.ListBySession: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptRepo.ListBySession: rows: %w", err)
	}

	return entries, nil
}

func (r *TranscriptRepo) CountBySession(ctx context.Context, sessionKey string) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transcript_entries WHERE session_key = $1`,
		sessionKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("transcriptRepo.CountBySession: %w", err)
	}

	return count, nil
}

func (r *TranscriptRepo) DeleteBySession(ctx context.Context, sessionKey string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM transcript_entries WHERE session_key = $1`,
		sessionKey,
	)
	if err != nil {
		return fmt.Errorf("transcriptRepo.DeleteBySession: %w", err)
	}

	return nil
}
