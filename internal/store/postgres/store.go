// Package postgres archives finished conversation turns so transcripts
// survive process restarts. The in-memory session log stays the source of
// truth for live turns; the archive is for history and audit.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool        *pgxpool.Pool
	transcripts *TranscriptRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	err = ensureSchema(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: schema: %w", err)
	}

	return &Store{
		pool:        pool,
		transcripts: NewTranscriptRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Transcripts() *TranscriptRepo { return s.transcripts }

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcript_entries (
			id          UUID PRIMARY KEY,
			session_key TEXT NOT NULL,
			role        TEXT NOT NULL,
			content     TEXT NOT NULL,
			tool_name   TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_entries_session
			ON transcript_entries (session_key, created_at);
	`)
	if err != nil {
		return fmt.Errorf("create transcript_entries: %w", err)
	}
	return nil
}
